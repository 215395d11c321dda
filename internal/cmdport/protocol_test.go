package cmdport

import "testing"

func TestParseRequest_Ping(t *testing.T) {
	req := parseRequest("PING?")
	if req.kind != reqPing {
		t.Fatalf("expected reqPing, got %v", req.kind)
	}
}

func TestParseRequest_TallyDumpAll(t *testing.T) {
	req := parseRequest("TALLY.PGM?")
	if req.kind != reqTallyDumpAll || req.channel != "PGM" {
		t.Fatalf("unexpected parse: %+v", req)
	}
}

func TestParseRequest_TallyQuery(t *testing.T) {
	req := parseRequest("TALLY.PVW:3?")
	if req.kind != reqTallyQuery || req.channel != "PVW" || req.index != 3 {
		t.Fatalf("unexpected parse: %+v", req)
	}
}

func TestParseRequest_TallyAssignmentIsUnrecognized(t *testing.T) {
	req := parseRequest("TALLY.PGM:5=1")
	if req.kind != reqUnrecognized {
		t.Fatalf("expected reqUnrecognized (no inbound write verb), got %+v", req)
	}
}

func TestParseRequest_UpdateTime(t *testing.T) {
	req := parseRequest("UPDATE.TIME=500")
	if req.kind != reqUpdateTime {
		t.Fatalf("unexpected parse: %+v", req)
	}
	ms, ok := parseAssignedInt(req.raw, "UPDATE.TIME")
	if !ok || ms != 500 {
		t.Fatalf("expected 500, got %d ok=%v", ms, ok)
	}
}

func TestParseRequest_Unrecognized(t *testing.T) {
	req := parseRequest("GARBAGE")
	if req.kind != reqUnrecognized {
		t.Fatalf("expected reqUnrecognized, got %v", req.kind)
	}
}

func TestFrameSplit_ExtractsBracketedContent(t *testing.T) {
	data := []byte("noise<PING?>more noise<TALLY.PGM?>")
	advance, token, err := frameSplit(data, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(token) != "PING?" {
		t.Fatalf("expected PING?, got %q", token)
	}
	rest := data[advance:]
	advance2, token2, err := frameSplit(rest, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(token2) != "TALLY.PGM?" {
		t.Fatalf("expected TALLY.PGM?, got %q", token2)
	}
	_ = advance2
}

func TestFrameSplit_NeedsMoreDataWithoutTerminator(t *testing.T) {
	data := []byte("<PING")
	advance, token, err := frameSplit(data, false)
	if err != nil {
		t.Fatal(err)
	}
	if token != nil || advance != 0 {
		t.Fatalf("expected to wait for more data, got advance=%d token=%q", advance, token)
	}
}
