package loop

import "testing"

func TestParseJSONDirectiveNeedMore(t *testing.T) {
	output := `{"need_more": true, "query": "deployment steps", "rationale": "missing detail", "stop": false}

The answer so far is incomplete.`

	d, answer, err := ParseJSONDirective(output, false)
	if err != nil {
		t.Fatal(err)
	}
	if !d.NeedMore {
		t.Error("expected NeedMore=true")
	}
	if d.Query != "deployment steps" {
		t.Errorf("query = %q", d.Query)
	}
	if d.Stop {
		t.Error("expected Stop=false")
	}
	if answer != "The answer so far is incomplete." {
		t.Errorf("answer = %q", answer)
	}
}

func TestParseJSONDirectiveStop(t *testing.T) {
	output := `{"need_more": false, "query": null, "rationale": null, "stop": true}

Final answer text.`

	d, answer, err := ParseJSONDirective(output, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.NeedMore || !d.Stop {
		t.Errorf("d = %+v", d)
	}
	if answer != "Final answer text." {
		t.Errorf("answer = %q", answer)
	}
}

func TestParseJSONDirectiveCoercesEmptyQuery(t *testing.T) {
	output := `{"need_more": true, "query": "", "stop": false}

text`
	d, _, err := ParseJSONDirective(output, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.NeedMore || !d.Stop {
		t.Errorf("expected need_more coerced to false and stop true, got %+v", d)
	}
}

func TestParseJSONDirectiveNonStrictFallback(t *testing.T) {
	output := "not json at all\njust plain text"
	d, answer, err := ParseJSONDirective(output, false)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Stop || d.NeedMore {
		t.Errorf("expected fallback stop directive, got %+v", d)
	}
	if answer != output {
		t.Errorf("expected full output as answer, got %q", answer)
	}
}

func TestParseJSONDirectiveStrictErrors(t *testing.T) {
	_, _, err := ParseJSONDirective("not json", true)
	if err == nil {
		t.Fatal("expected error in strict mode")
	}
}

func TestParseRegexDirective(t *testing.T) {
	output := "NEED_MORE: missing config detail\nQUERY: redis config\n\nPartial answer."
	d, answer := ParseRegexDirective(output)
	if !d.NeedMore {
		t.Error("expected NeedMore=true")
	}
	if d.Query != "redis config" {
		t.Errorf("query = %q", d.Query)
	}
	if answer != output {
		t.Errorf("regex protocol should return full output as answer")
	}
}

func TestParseRegexDirectiveNoMarkers(t *testing.T) {
	d, answer := ParseRegexDirective("plain answer, no markers")
	if d.NeedMore || !d.Stop {
		t.Errorf("expected stop directive with no markers, got %+v", d)
	}
	if answer != "plain answer, no markers" {
		t.Errorf("answer = %q", answer)
	}
}

func TestParsePassiveDirective(t *testing.T) {
	d, answer := ParsePassiveDirective("anything goes")
	if d.NeedMore || !d.Stop {
		t.Errorf("passive directive should always stop, got %+v", d)
	}
	if answer != "anything goes" {
		t.Errorf("answer = %q", answer)
	}
}

func TestParseDirectiveDispatch(t *testing.T) {
	if _, _, err := ParseDirective("x", "bogus", false); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
	if _, _, err := ParseDirective(`{"stop":true}`, ProtocolJSON, false); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ParseDirective("text", ProtocolPassive, false); err != nil {
		t.Fatal(err)
	}
}
