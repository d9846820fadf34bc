package mapping

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-insight/internal/models"
	"geo-insight/internal/payload"
)

func decode(t *testing.T, s string) payload.Value {
	t.Helper()
	v, err := payload.Decode([]byte(s))
	require.NoError(t, err)
	return v
}

func TestResolve(t *testing.T) {
	t.Parallel()

	root := decode(t, `{"a":{"b":5,"list":[1,2]},"flat":"x"}`)

	t.Run("nested key", func(t *testing.T) {
		v, ok := Resolve(root, "a.b")
		require.True(t, ok)
		assert.Equal(t, 5.0, v)
	})

	t.Run("missing key is absent", func(t *testing.T) {
		_, ok := Resolve(root, "a.c")
		assert.False(t, ok)
	})

	t.Run("traversal through non-object is absent", func(t *testing.T) {
		_, ok := Resolve(root, "flat.deeper")
		assert.False(t, ok)
	})

	t.Run("array index syntax is not supported", func(t *testing.T) {
		_, ok := Resolve(root, "a.list[0]")
		assert.False(t, ok)
		assert.True(t, HasArrayIndex("a.list[0]"))
	})

	t.Run("array value is returned as leaf", func(t *testing.T) {
		v, ok := Resolve(root, "a.list")
		require.True(t, ok)
		assert.Len(t, v, 2)
	})

	t.Run("empty path and non-object roots", func(t *testing.T) {
		_, ok := Resolve(root, "")
		assert.False(t, ok)
		_, ok = Resolve("text", "a")
		assert.False(t, ok)
		_, ok = Resolve(nil, "a")
		assert.False(t, ok)
		_, ok = Resolve([]payload.Value{1.0}, "0")
		assert.False(t, ok)
	})

	t.Run("resolution is idempotent", func(t *testing.T) {
		first, ok1 := Resolve(root, "a.b")
		second, ok2 := Resolve(root, "a.b")
		assert.Equal(t, ok1, ok2)
		assert.Equal(t, first, second)
	})

	t.Run("null leaf is present", func(t *testing.T) {
		v, ok := Resolve(decode(t, `{"n":null}`), "n")
		assert.True(t, ok)
		assert.Nil(t, v)
	})
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	root := decode(t, `{"z":1,"pos":{"lat":1,"lng":2},"tags":["a"],"empty":{}}`)
	assert.Equal(t, []string{"z", "pos.lat", "pos.lng", "tags"}, Flatten(root))
	assert.Empty(t, Flatten("scalar"))
}

func TestDetect(t *testing.T) {
	t.Parallel()

	t.Run("nested temperature sample", func(t *testing.T) {
		sample := decode(t, `{"temperature":{"value":25.5,"unit":"°C"},"meta":{"ts":"2025-10-15T10:00:00Z","id":"sensor_1"}}`)
		got := Detect(sample)
		assert.Equal(t, Config{
			ValuePath:     "temperature.value",
			UnitPath:      "temperature.unit",
			TimestampPath: "meta.ts",
			SensorIDPath:  "meta.id",
		}, got)
	})

	t.Run("coordinates and sensor type", func(t *testing.T) {
		sample := decode(t, `{"deviceId":"agv-7","kind":"agv","position":{"x":1.5,"y":2.5,"z":0},"speed":1.2,"createdAt":1700000000000}`)
		got := Detect(sample)
		assert.Equal(t, "speed", got.ValuePath)
		assert.Equal(t, "createdAt", got.TimestampPath)
		assert.Equal(t, "position.x", got.XPath)
		assert.Equal(t, "position.y", got.YPath)
		assert.Equal(t, "position.z", got.ZPath)
		assert.Equal(t, "deviceId", got.SensorIDPath)
		assert.Equal(t, "kind", got.SensorTypePath)
	})

	t.Run("first match wins", func(t *testing.T) {
		sample := decode(t, `{"humidity":40,"temperature":21}`)
		assert.Equal(t, "humidity", Detect(sample).ValuePath)

		swapped := decode(t, `{"temperature":21,"humidity":40}`)
		assert.Equal(t, "temperature", Detect(swapped).ValuePath)
	})

	t.Run("deterministic", func(t *testing.T) {
		sample := decode(t, `{"a":{"reading":1,"time":"t"},"b":{"level":2,"date":"d"}}`)
		first := Detect(sample)
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, Detect(sample))
		}
	})

	t.Run("nothing matches", func(t *testing.T) {
		assert.True(t, Detect(decode(t, `{"foo":1,"bar":{"baz":2}}`)).IsEmpty())
		assert.True(t, Detect(nil).IsEmpty())
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("string value is coerced", func(t *testing.T) {
		msg := models.RawMessage{ID: "m1", Payload: decode(t, `{"v":"42","t":"2025-01-01"}`)}
		p := Normalize(msg, Config{ValuePath: "v", TimestampPath: "t"})
		require.NotNil(t, p)
		assert.Equal(t, "m1", p.ID)
		assert.Equal(t, 42.0, p.Value)
		assert.Equal(t, models.TimestampString, p.Timestamp.Kind)
		assert.Equal(t, "2025-01-01", p.Timestamp.String)
		assert.Nil(t, p.X)
		assert.Nil(t, p.Y)
		assert.Nil(t, p.Z)
		assert.Nil(t, p.SensorID)
		assert.Nil(t, p.SensorType)
		assert.Nil(t, p.Unit)
	})

	t.Run("unresolved value path", func(t *testing.T) {
		msg := models.RawMessage{ID: "m2", Payload: decode(t, `{"t":"2025-01-01"}`)}
		assert.Nil(t, Normalize(msg, Config{ValuePath: "missing", TimestampPath: "t"}))
	})

	t.Run("required paths unset", func(t *testing.T) {
		msg := models.RawMessage{Payload: decode(t, `{"v":1,"t":2}`)}
		assert.Nil(t, Normalize(msg, Config{ValuePath: "v"}))
		assert.Nil(t, Normalize(msg, Config{TimestampPath: "t"}))
	})

	t.Run("optional fields", func(t *testing.T) {
		msg := models.RawMessage{ID: "m3", Payload: decode(t, `{
			"reading":{"value":3.5,"unit":"m/s"},
			"ts":1700000000,
			"pos":{"x":"1.5","y":0},
			"sensor":{"id":17,"type":"anemometer"}
		}`)}
		cfg := Config{
			ValuePath:      "reading.value",
			TimestampPath:  "ts",
			XPath:          "pos.x",
			YPath:          "pos.y",
			ZPath:          "pos.z",
			SensorIDPath:   "sensor.id",
			SensorTypePath: "sensor.type",
			UnitPath:       "reading.unit",
		}
		p := Normalize(msg, cfg)
		require.NotNil(t, p)
		require.NotNil(t, p.X)
		assert.Equal(t, 1.5, *p.X)
		require.NotNil(t, p.Y)
		assert.Equal(t, 0.0, *p.Y)
		assert.Nil(t, p.Z, "unresolved optional path maps to nil, not zero")
		assert.Equal(t, "17", *p.SensorID)
		assert.Equal(t, "anemometer", *p.SensorType)
		assert.Equal(t, "m/s", *p.Unit)
		assert.Equal(t, models.TimestampNumber, p.Timestamp.Kind)
		assert.Equal(t, 1700000000.0, p.Timestamp.Number)
	})

	t.Run("non-numeric value flows through as NaN", func(t *testing.T) {
		for _, body := range []string{
			`{"v":"abc","t":"x"}`,
			`{"v":true,"t":"x"}`,
			`{"v":{"nested":1},"t":"x"}`,
			`{"v":null,"t":"x"}`,
		} {
			p := Normalize(models.RawMessage{Payload: decode(t, body)}, Config{ValuePath: "v", TimestampPath: "t"})
			require.NotNil(t, p, body)
			assert.True(t, math.IsNaN(p.Value), body)
			assert.False(t, p.HasValidValue(), body)
		}
	})

	t.Run("round trip with validation", func(t *testing.T) {
		sample := decode(t, `{"data":{"temp":"19.5"},"time":"2025-05-01T00:00:00Z"}`)
		cfg := Config{ValuePath: "data.temp", TimestampPath: "time"}
		require.Empty(t, cfg.Validate(sample))
		p := Normalize(models.RawMessage{Payload: sample}, cfg)
		require.NotNil(t, p)
		assert.Equal(t, 19.5, p.Value)
		_, ok := p.Timestamp.Time()
		assert.True(t, ok)
	})
}

func TestToNumber(t *testing.T) {
	t.Parallel()

	cases := map[string]float64{
		"42":        42,
		" 3.5 ":     3.5,
		"":          0,
		"-1e3":      -1000,
		".5":        0.5,
		"0x1A":      26,
		"0b101":     5,
		"0o17":      15,
		"Infinity":  math.Inf(1),
		"-Infinity": math.Inf(-1),
	}
	for in, want := range cases {
		assert.Equal(t, want, ToNumber(in), in)
	}

	for _, in := range []string{"abc", "12abc", "inf", "NaN", "1_000", "0xZZ"} {
		assert.True(t, math.IsNaN(ToNumber(in)), in)
	}
	assert.Equal(t, 7.25, ToNumber(7.25))
	assert.True(t, math.IsNaN(ToNumber([]payload.Value{})))
}

func TestToString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "17", ToString(17.0))
	assert.Equal(t, "0.25", ToString(0.25))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, "null", ToString(nil))
	assert.Equal(t, "abc", ToString("abc"))
	assert.Equal(t, `{"b":1,"a":2}`, ToString(decodeObject(t, `{"b":1,"a":2}`)))
	assert.Equal(t, `[1,"x",null]`, ToString([]payload.Value{1.0, "x", nil}))
}

func decodeObject(t *testing.T, s string) *payload.Object {
	t.Helper()
	obj, ok := decode(t, s).(*payload.Object)
	require.True(t, ok)
	return obj
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	sample := decode(t, `{"v":1,"t":"now"}`)

	t.Run("all errors are listed", func(t *testing.T) {
		errs := Config{}.Validate(sample)
		assert.Len(t, errs, 2)

		errs = Config{ValuePath: "nope", TimestampPath: "also.nope"}.Validate(sample)
		assert.Len(t, errs, 2)
	})

	t.Run("valid", func(t *testing.T) {
		assert.Empty(t, Config{ValuePath: "v", TimestampPath: "t"}.Validate(sample))
	})

	t.Run("complete against observed samples", func(t *testing.T) {
		other := decode(t, `{"x":1}`)
		cfg := Config{ValuePath: "v", TimestampPath: "t"}
		assert.True(t, cfg.Complete([]payload.Value{other, sample}))
		assert.False(t, cfg.Complete([]payload.Value{other}))
		assert.False(t, Config{ValuePath: "v"}.Complete([]payload.Value{sample}))
	})
}

func TestConfigWithPath(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	for _, f := range Fields {
		var err error
		cfg, err = cfg.WithPath(f, "p."+string(f))
		require.NoError(t, err)
	}
	for _, f := range Fields {
		assert.Equal(t, "p."+string(f), cfg.Path(f))
	}

	_, err := cfg.WithPath(Field("bogus"), "x")
	assert.Error(t, err)
}

func TestHolderSnapshot(t *testing.T) {
	t.Parallel()

	h := NewHolder(Config{ValuePath: "a", TimestampPath: "b"})
	snapshot := h.Load()
	h.Store(Config{ValuePath: "c", TimestampPath: "d"})

	assert.Equal(t, "a", snapshot.ValuePath)
	assert.Equal(t, Config{ValuePath: "c", TimestampPath: "d"}, h.Load())

	var empty Holder
	assert.True(t, empty.Load().IsEmpty())
}
