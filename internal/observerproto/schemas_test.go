package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelstream.dev/internal/observerproto"
)

func TestSchemas_ValidateMessages(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round-trip through JSON so the validator sees plain maps.
	validate := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	validate(compile("subscribe.schema.json"), observerproto.SubscribeMsg{
		Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, Sorted: true,
	})
	validate(compile("position.schema.json"), observerproto.PositionMsg{
		Type: observerproto.TypePosition, ProtocolVersion: observerproto.Version, Seq: 7, Pos: [3]float32{1.5, 40, -3},
	})
	validate(compile("edit.schema.json"), observerproto.EditMsg{
		Type: observerproto.TypeEdit, ProtocolVersion: observerproto.Version, Seq: 8,
		Action: observerproto.ActionRemove, Origin: [3]float32{0, 50, 0}, Dir: [3]float32{0, -1, 0}, MaxDist: 64,
	})
	region := compile("region.schema.json")
	validate(region, observerproto.RegionMsg{
		Type: observerproto.TypeRegion, ProtocolVersion: observerproto.Version, Seq: 7,
		Added: [][3]int{{0, 0, 0}, {-16, 0, 16}}, Active: 9, Resident: 9, Loading: 2,
	})
	validate(region, observerproto.RegionMsg{
		Type: observerproto.TypeRegion, ProtocolVersion: observerproto.Version,
	})
	validate(compile("edited.schema.json"), observerproto.EditedMsg{
		Type: observerproto.TypeEdited, ProtocolVersion: observerproto.Version, Seq: 8, Hit: true, Cell: [3]int{3, 20, 4},
	})
	validate(compile("error.schema.json"), observerproto.NewError(observerproto.ErrBusy, "another observer is connected"))
}

func TestSchemas_RejectUnknownAction(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "edit.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"EDIT","protocol_version":"1.0","seq":1,"action":"PAINT","origin":[0,0,0],"dir":[0,1,0]}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected PAINT to be rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := observerproto.DecodeBase([]byte(`{"type":"POSITION","protocol_version":"1.0","seq":1,"pos":[0,0,0]}`))
	if err != nil {
		t.Fatalf("DecodeBase: %v", err)
	}
	if m.Type != observerproto.TypePosition || m.ProtocolVersion != observerproto.Version {
		t.Fatalf("got %+v", m)
	}
	if _, err := observerproto.DecodeBase([]byte(`{`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}
