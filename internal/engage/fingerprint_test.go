package engage

import (
	"testing"

	"github.com/okian/funnel/internal/domain/model"
)

func TestFingerprintContentEquality(t *testing.T) {
	a := Fingerprint("lobby", "default", model.Params{"level": 3, "tier": "gold"})
	b := Fingerprint("lobby", "default", model.Params{"tier": "gold", "level": 3})

	if a != b {
		t.Errorf("semantically equal requests must share a fingerprint: %s != %s", a, b)
	}
}

func TestFingerprintDiscriminates(t *testing.T) {
	base := Fingerprint("lobby", "default", model.Params{"level": 3})

	if Fingerprint("shop", "default", model.Params{"level": 3}) == base {
		t.Error("decision point must contribute to the fingerprint")
	}
	if Fingerprint("lobby", "advert", model.Params{"level": 3}) == base {
		t.Error("flavour must contribute to the fingerprint")
	}
	if Fingerprint("lobby", "default", model.Params{"level": 4}) == base {
		t.Error("parameter content must contribute to the fingerprint")
	}
}

func TestFingerprintNilAndEmptyParamsAgree(t *testing.T) {
	if Fingerprint("lobby", "default", nil) != Fingerprint("lobby", "default", model.Params{}) {
		t.Error("nil and empty parameter sets should share a slot")
	}
}

func TestFingerprintUnmarshalableParams(t *testing.T) {
	empty := Fingerprint("lobby", "default", nil)
	bad := Fingerprint("lobby", "default", model.Params{"signal": make(chan int)})

	if bad == empty {
		t.Error("unmarshalable parameters must not share the empty-parameter slot")
	}
	if Fingerprint("lobby", "default", model.Params{"other": 1}) == bad {
		t.Error("unmarshalable parameters must still get their own slot")
	}
}

func TestFingerprintNestedParams(t *testing.T) {
	a := Fingerprint("lobby", "default", model.Params{
		"profile": map[string]interface{}{"b": 2, "a": 1},
	})
	b := Fingerprint("lobby", "default", model.Params{
		"profile": map[string]interface{}{"a": 1, "b": 2},
	})

	if a != b {
		t.Error("nested map key order must not change the fingerprint")
	}
}
