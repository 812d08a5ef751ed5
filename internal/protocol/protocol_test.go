package protocol

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/vessel-monitor/internal/serial"
	"github.com/sweeney/vessel-monitor/internal/state"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestEncodeDefaults(t *testing.T) {
	s := state.New()
	d, _ := s.Get(state.Device1)
	d.WaterLevelOK = true

	line, err := Encode(state.Device1, d, 0)
	require.NoError(t, err)
	assert.Equal(t,
		`{"device":"device1","temp":25.0,"water":1,"heat":0,"pump":0,"cool":0,"warn":0,"alarm":0,"flow":0.0}`+"\n",
		string(line))
}

func TestEncodeRoundsAndFlags(t *testing.T) {
	d := state.DeviceState{
		Temperature: 23.4567,
		HeaterOn:    true,
		CoolerOn:    true,
		Alarm:       true,
	}
	line, err := Encode(state.Device2, d, 8.0049)
	require.NoError(t, err)
	assert.Equal(t,
		`{"device":"device2","temp":23.46,"water":0,"heat":1,"pump":0,"cool":1,"warn":0,"alarm":1,"flow":8.0}`+"\n",
		string(line))
}

func TestEncodeNegativeTemperature(t *testing.T) {
	line, err := Encode(state.Device1, state.DeviceState{Temperature: -3}, 12.5)
	require.NoError(t, err)
	assert.Contains(t, string(line), `"temp":-3.0`)
	assert.Contains(t, string(line), `"flow":12.5`)
}

func TestEncodeRejectsNaN(t *testing.T) {
	_, err := Encode(state.Device1, state.DeviceState{Temperature: math.NaN()}, 0)
	assert.Error(t, err)
}

func TestEncodeSnapshotOrder(t *testing.T) {
	s := state.New()
	s.SetFlow(2)
	out, err := EncodeSnapshot(s.ReadAll())
	require.NoError(t, err)

	lines := splitLines(string(out))
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"device":"device1"`)
	assert.Contains(t, lines[1], `"device":"device2"`)
	assert.Contains(t, lines[1], `"flow":2.0`)
}

func splitLines(s string) []string {
	f := NewFramer(0)
	lines, _ := f.Feed([]byte(s))
	return lines
}

func TestFramerSplitAcrossReads(t *testing.T) {
	f := NewFramer(0)

	lines, err := f.Feed([]byte(`{"device":"dev`))
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = f.Feed([]byte(`ice1","temp":30}` + "\n" + `{"device":"dev`))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"device":"device1","temp":30}`}, lines)
	assert.Equal(t, `{"device":"dev`, f.Buffered())
}

func TestFramerCRLFAndEmptyLines(t *testing.T) {
	f := NewFramer(0)

	lines, err := f.Feed([]byte("\n\r\n  \n{\"a\":1}\r\n\n{\"b\":2}\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, lines)
	assert.Empty(t, f.Buffered())
}

func TestFramerInvalidUTF8DiscardsBuffer(t *testing.T) {
	f := NewFramer(0)

	_, err := f.Feed([]byte(`{"device":"dev`))
	require.NoError(t, err)

	lines, err := f.Feed([]byte("ice1\xff\"}\n{\"x\":1}\n"))
	assert.ErrorIs(t, err, ErrDecodeFault)
	assert.Empty(t, lines)
	assert.Empty(t, f.Buffered())

	// The link resynchronizes on the next clean line.
	lines, err = f.Feed([]byte("{\"device\":\"device2\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"device":"device2"}`}, lines)
}

func TestFramerRuneSplitAcrossReads(t *testing.T) {
	f := NewFramer(0)
	word := []byte("温度")

	_, err := f.Feed(append([]byte(`{"note":"`), word[:2]...))
	require.NoError(t, err, "incomplete rune at end of chunk is not a fault")

	lines, err := f.Feed(append(word[2:], []byte("\"}\n")...))
	require.NoError(t, err)
	assert.Equal(t, []string{`{"note":"温度"}`}, lines)
}

func TestFramerOverlongLine(t *testing.T) {
	f := NewFramer(16)

	lines, err := f.Feed([]byte("{\"a\":1}\n0123456789abcdefXYZ"))
	assert.ErrorIs(t, err, ErrDecodeFault)
	assert.Equal(t, []string{`{"a":1}`}, lines)
	assert.Empty(t, f.Buffered())
}

func TestParsePartial(t *testing.T) {
	msg, err := Parse(`{"device":"device2","heat":1,"temp":"31.5","extra":"ignored"}`)
	require.NoError(t, err)

	assert.Equal(t, state.Device2, msg.Device)
	require.NotNil(t, msg.Fields.HeaterOn)
	assert.True(t, *msg.Fields.HeaterOn)
	require.NotNil(t, msg.Fields.Temperature)
	assert.Equal(t, 31.5, *msg.Fields.Temperature)
	assert.Nil(t, msg.Fields.PumpOn)
	assert.Nil(t, msg.Fields.WaterLevelOK)
	assert.Nil(t, msg.Flow)
}

func TestParseCoercion(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`1`, true},
		{`0`, false},
		{`true`, true},
		{`false`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`2`, true},
		{`0.0`, false},
	}
	for _, tt := range tests {
		msg, err := Parse(`{"device":"device1","pump":` + tt.in + `}`)
		require.NoError(t, err, tt.in)
		require.NotNil(t, msg.Fields.PumpOn, tt.in)
		assert.Equal(t, tt.want, *msg.Fields.PumpOn, tt.in)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"not json", `hello`, ErrMalformedMessage},
		{"array", `[1,2]`, ErrMalformedMessage},
		{"null", `null`, ErrMalformedMessage},
		{"missing device", `{"temp":20}`, ErrMalformedMessage},
		{"empty device", `{"device":""}`, ErrMalformedMessage},
		{"numeric device", `{"device":1}`, ErrMalformedMessage},
		{"bad bool string", `{"device":"device1","heat":"yes"}`, ErrMalformedMessage},
		{"bad temp", `{"device":"device1","temp":"warm"}`, ErrMalformedMessage},
		{"nan temp", `{"device":"device1","temp":"NaN"}`, ErrMalformedMessage},
		{"object value", `{"device":"device1","cool":{}}`, ErrMalformedMessage},
		{"unknown device", `{"device":"device3","heat":1}`, state.ErrUnknownDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.line)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApplyLeavesOmittedFieldsUntouched(t *testing.T) {
	s := state.New()
	require.NoError(t, s.Update(state.Device1, state.Partial{
		Temperature:  state.Float(40),
		WaterLevelOK: state.Bool(true),
		PumpOn:       state.Bool(true),
		Alarm:        state.Bool(true),
	}))
	before1, _ := s.Get(state.Device1)
	before2, _ := s.Get(state.Device2)

	msg, err := Parse(`{"device":"device1","heat":1}`)
	require.NoError(t, err)
	require.NoError(t, Apply(s, msg))

	after1, _ := s.Get(state.Device1)
	want := before1
	want.HeaterOn = true
	assert.Equal(t, want, after1)

	after2, _ := s.Get(state.Device2)
	assert.Equal(t, before2, after2, "device isolation")
}

func TestApplyFlowIsShared(t *testing.T) {
	s := state.New()
	msg, err := Parse(`{"device":"device2","flow":3.25}`)
	require.NoError(t, err)
	require.NoError(t, Apply(s, msg))

	assert.Equal(t, 3.25, s.Flow())
	assert.Equal(t, 3.25, s.ReadAll().Flow)
	d1, _ := s.Get(state.Device1)
	assert.Equal(t, state.DefaultTemperature, d1.Temperature)
}

func TestRoundTrip(t *testing.T) {
	src := state.DeviceState{
		Temperature:  36.789,
		WaterLevelOK: true,
		PumpOn:       true,
		Warning:      true,
	}
	line, err := Encode(state.Device1, src, 7.777)
	require.NoError(t, err)

	frames := splitLines(string(line))
	require.Len(t, frames, 1)
	msg, err := Parse(frames[0])
	require.NoError(t, err)

	s := state.New()
	require.NoError(t, Apply(s, msg))
	got, _ := s.Get(state.Device1)

	assert.InDelta(t, src.Temperature, got.Temperature, 0.005)
	assert.InDelta(t, 7.777, s.Flow(), 0.005)
	src.Temperature = got.Temperature
	assert.Equal(t, src, got)
}

func TestUnknownDeviceLeavesStateUnchanged(t *testing.T) {
	s := state.New()
	s.SetFlow(1.5)
	before := s.ReadAll()

	port := serial.NewFakePort()
	r := NewReceiver(s, port, 10*time.Millisecond, nil)
	port.Push([]byte(`{"device":"device3","temp":99,"heat":1,"flow":50}` + "\n"))
	require.NoError(t, r.Step(t0))

	assert.Equal(t, before, s.ReadAll())
	assert.Equal(t, uint64(1), r.Counters().UnknownDevice)
	assert.Equal(t, uint64(0), r.Counters().Applied)
}

func TestBroadcasterWritesBothDevices(t *testing.T) {
	s := state.New()
	require.NoError(t, s.SetActuator(state.Device2, state.Cooler, true))
	s.SetFlow(8)
	port := serial.NewFakePort()
	b := NewBroadcaster(s, port, time.Second)

	require.NoError(t, b.Step(t0))

	lines := port.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, `{"device":"device1","temp":25.0,"water":0,"heat":0,"pump":0,"cool":0,"warn":0,"alarm":0,"flow":8.0}`, lines[0])
	assert.Equal(t, `{"device":"device2","temp":25.0,"water":0,"heat":0,"pump":0,"cool":1,"warn":0,"alarm":0,"flow":8.0}`, lines[1])
	assert.Equal(t, uint64(2), b.Sent())
}

func TestBroadcasterWriteError(t *testing.T) {
	port := serial.NewFakePort()
	port.WriteError = errors.New("tx overrun")
	b := NewBroadcaster(state.New(), port, time.Second)

	err := b.Step(t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send device1")
	assert.Contains(t, err.Error(), "send device2")
	assert.Equal(t, uint64(0), b.Sent())
}

func TestReceiverAppliesChunkedInput(t *testing.T) {
	s := state.New()
	port := serial.NewFakePort()
	r := NewReceiver(s, port, 10*time.Millisecond, nil)

	port.Push([]byte(`{"device":"dev`))
	require.NoError(t, r.Step(t0))
	d1, _ := s.Get(state.Device1)
	assert.Equal(t, state.DefaultTemperature, d1.Temperature, "partial line not applied")

	port.Push([]byte(`ice1","temp":30}` + "\n" + `{"device":"dev`))
	require.NoError(t, r.Step(t0.Add(10*time.Millisecond)))
	d1, _ = s.Get(state.Device1)
	assert.Equal(t, 30.0, d1.Temperature)

	port.Push([]byte(`ice2","cool":"1"}` + "\n"))
	require.NoError(t, r.Step(t0.Add(20*time.Millisecond)))
	d2, _ := s.Get(state.Device2)
	assert.True(t, d2.CoolerOn)

	c := r.Counters()
	assert.Equal(t, uint64(2), c.LinesReceived)
	assert.Equal(t, uint64(2), c.Applied)
}

func TestReceiverDropsBadInputAndContinues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := state.New()
	port := serial.NewFakePort()
	r := NewReceiver(s, port, 10*time.Millisecond, zap.New(core).Sugar())

	port.Push([]byte("not json\n{\"device\":\"device1\",\"alarm\":1}\n"))
	require.NoError(t, r.Step(t0))

	port.Push([]byte("\xfe\xff\n"))
	require.NoError(t, r.Step(t0))

	port.Push([]byte("{\"device\":\"device2\",\"warn\":1}\n"))
	require.NoError(t, r.Step(t0))

	d1, _ := s.Get(state.Device1)
	d2, _ := s.Get(state.Device2)
	assert.True(t, d1.Alarm)
	assert.True(t, d2.Warning)

	c := r.Counters()
	assert.Equal(t, uint64(1), c.Malformed)
	assert.Equal(t, uint64(1), c.DecodeFaults)
	assert.Equal(t, uint64(2), c.Applied)
	assert.Equal(t, 1, logs.FilterMessage("inbound line dropped").Len())
	assert.Equal(t, 1, logs.FilterMessage("inbound buffer discarded").Len())
}

func TestReceiverIdleWithoutData(t *testing.T) {
	r := NewReceiver(state.New(), serial.NewFakePort(), 10*time.Millisecond, nil)
	require.NoError(t, r.Step(t0))
	assert.Equal(t, Counters{}, r.Counters())
}

func TestLinkCounters(t *testing.T) {
	s := state.New()
	port := serial.NewFakePort()
	b := NewBroadcaster(s, port, time.Second)
	r := NewReceiver(s, port, 10*time.Millisecond, nil)

	require.NoError(t, b.Step(t0))
	port.Push([]byte("{\"device\":\"device1\"}\n"))
	require.NoError(t, r.Step(t0))

	c := LinkCounters(b, r)
	assert.Equal(t, uint64(2), c.LinesSent)
	assert.Equal(t, uint64(1), c.Applied)
	assert.Equal(t, Counters{}, LinkCounters(nil, nil))
}

func TestReceiverReportsPortHealth(t *testing.T) {
	port := serial.NewFakePort()
	r := NewReceiver(state.New(), port, 10*time.Millisecond, nil)

	port.SetHealth(serial.Health{Dropped: 12, ReadErrors: 3, Err: errors.New("input/output error")})
	c := r.Counters()
	assert.Equal(t, uint64(12), c.RxDropped)
	assert.Equal(t, uint64(3), c.RxReadErrors)
	assert.Equal(t, "input/output error", c.RxError)

	port.SetHealth(serial.Health{ReadErrors: 3})
	assert.Empty(t, r.Counters().RxError, "cleared once reads succeed")
}
