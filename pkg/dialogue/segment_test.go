package dialogue

import "testing"

func TestExtractTTSTextBelowMinLength(t *testing.T) {
	seg, rem := ExtractTTSText("abc, def.")
	if seg != "" {
		t.Errorf("expected no segment for <10 char input, got %q", seg)
	}
	if rem != "abc, def." {
		t.Errorf("expected remainder unchanged, got %q", rem)
	}
}

func TestExtractTTSTextCJKBelowMinLength(t *testing.T) {
	seg, _ := ExtractTTSText("今天天气真不错，")
	if seg != "" {
		t.Errorf("expected no segment, got %q", seg)
	}
}

func TestExtractTTSTextCJKWholeSegment(t *testing.T) {
	input := "今天天气真不错，适合出去玩。"
	seg, rem := ExtractTTSText(input)
	if seg != input {
		t.Errorf("expected whole string as segment, got %q", seg)
	}
	if rem != "" {
		t.Errorf("expected empty remainder, got %q", rem)
	}
}

func TestExtractTTSTextKeepsRemainderAfterPunctuation(t *testing.T) {
	seg, rem := ExtractTTSText("This is a sentence. And more")
	if seg != "This is a sentence." {
		t.Errorf("unexpected segment: %q", seg)
	}
	if rem != " And more" {
		t.Errorf("unexpected remainder: %q", rem)
	}
}

func TestExtractTTSTextNoPunctuationKeepsBuffering(t *testing.T) {
	seg, rem := ExtractTTSText("this has no punctuation at all and is long")
	if seg != "" {
		t.Errorf("expected no segment without punctuation, got %q", seg)
	}
	if rem != "this has no punctuation at all and is long" {
		t.Errorf("expected remainder unchanged")
	}
}
