package factory

import "testing"

type sample struct{ Qos byte }

type sampleConf struct {
	Qos   byte   `json:"qos"`
	Topic string `json:"topic"`
}

// Test registry registration and instantiation using Decode.
func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sample]()
	if err := reg.Register("s", func(conf map[string]any) (*sample, error) {
		var c sampleConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sample{Qos: c.Qos}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "s", Conf: map[string]any{"qos": 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Qos != 1 {
		t.Fatalf("expected 1 got %d", inst.Qos)
	}
}

// Values from environment variables arrive as strings.
func TestDecode_WeakStrings(t *testing.T) {
	var c sampleConf
	if err := Decode(map[string]any{"qos": "2", "topic": "corridor"}, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Qos != 2 || c.Topic != "corridor" {
		t.Fatalf("unexpected decode %+v", c)
	}
}

// Test duplicate registration and unknown type errors.
func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("x", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("x", func(map[string]any) (int, error) { return 2, nil }); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("z", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "y"}); err == nil {
		t.Fatal("expected unknown type error")
	}
	if got := reg.Types(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("unexpected types %v", got)
	}
}
