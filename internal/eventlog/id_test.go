package eventlog

import "testing"

func TestParseID(t *testing.T) {
	id, err := ParseID("1700000000000-7")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Ms != 1700000000000 || id.Seq != 7 {
		t.Fatalf("got %+v", id)
	}
	if id.String() != "1700000000000-7" {
		t.Fatalf("round trip: %q", id.String())
	}
}

func TestParseIDZeroForms(t *testing.T) {
	for _, s := range []string{"", "0", " 0 "} {
		id, err := ParseID(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if !id.IsZero() {
			t.Fatalf("parse %q: want zero, got %+v", s, id)
		}
	}
}

func TestParseIDMalformed(t *testing.T) {
	for _, s := range []string{"abc", "5-", "-3", "1-2-3", "x-1", "1-x"} {
		if _, err := ParseID(s); err == nil {
			t.Fatalf("parse %q: want error", s)
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	a := EntryID{Ms: 100, Seq: 5}
	b := EntryID{Ms: 100, Seq: 6}
	c := EntryID{Ms: 101, Seq: 0}

	if !a.Less(b) || !b.Less(c) || !a.Less(c) {
		t.Fatalf("ordering broken: %v %v %v", a, b, c)
	}
	if a.Compare(a) != 0 {
		t.Fatalf("self compare")
	}
	if !c.After(b) {
		t.Fatalf("After broken")
	}
}

func TestFromMs(t *testing.T) {
	id := FromMs(1234)
	if id.Ms != 1234 || id.Seq != 0 {
		t.Fatalf("got %+v", id)
	}
	if id.String() != "1234-0" {
		t.Fatalf("got %q", id.String())
	}
}
