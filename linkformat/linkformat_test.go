package linkformat

import "testing"

// TestParseScenarioF covers spec.md §8 Scenario F.
func TestParseScenarioF(t *testing.T) {
	in := `</sensors/temp>;rt="temperature";if="sensor";obs,</sensors/hum>;rt="humidity"`
	links, err := Parse(in, true)
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Target != "/sensors/temp" {
		t.Fatalf("unexpected target: %s", links[0].Target)
	}
	if rt, _ := links[0].Get("rt"); rt != "temperature" {
		t.Fatalf("unexpected rt: %s", rt)
	}
	if ifc, _ := links[0].Get("if"); ifc != "sensor" {
		t.Fatalf("unexpected if: %s", ifc)
	}
	if _, ok := links[0].Get("obs"); !ok {
		t.Fatalf("expected obs flag attribute")
	}
	if links[1].Target != "/sensors/hum" {
		t.Fatalf("unexpected second target: %s", links[1].Target)
	}
}

func TestParseStrictRejectsRepeatedTitle(t *testing.T) {
	in := `</a>;title="one";title="two"`
	if _, err := Parse(in, true); err == nil {
		t.Fatalf("strict mode must reject a repeated single-value attribute")
	}
	if _, err := Parse(in, false); err != nil {
		t.Fatalf("lenient mode must accept a repeated attribute: %s", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	links := []Link{
		{Target: "/sensors/temp", Attrs: map[string][]string{"rt": {"temperature"}, "if": {"sensor"}, "obs": {"1"}}},
	}
	out := Serialize(links)
	parsed, err := Parse(out, true)
	if err != nil {
		t.Fatalf("Parse(Serialize(...)): %s", err)
	}
	if len(parsed) != 1 || parsed[0].Target != "/sensors/temp" {
		t.Fatalf("round trip lost the target: %q", out)
	}
	if rt, _ := parsed[0].Get("rt"); rt != "temperature" {
		t.Fatalf("round trip lost rt: %q", out)
	}
}
