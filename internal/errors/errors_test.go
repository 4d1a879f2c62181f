package errors

import (
	stderrors "errors"
	"testing"
)

func TestNewAndKind(t *testing.T) {
	err := New(KindValidation, "bad label")
	if err.Error() != "bad label" {
		t.Errorf("Error() = %q", err.Error())
	}
	if GetKind(err) != KindValidation {
		t.Errorf("GetKind = %v, want KindValidation", GetKind(err))
	}
	if !IsKind(err, KindValidation) {
		t.Error("IsKind should match")
	}
	if IsKind(err, KindIO) {
		t.Error("IsKind should not match a different kind")
	}
}

func TestWrapPreservesChain(t *testing.T) {
	base := stderrors.New("disk full")
	err := Wrapf(base, KindIO, "saving profile %q", "default")

	if !stderrors.Is(err, base) {
		t.Error("wrapped error should match base via errors.Is")
	}
	if GetKind(err) != KindIO {
		t.Errorf("GetKind = %v, want KindIO", GetKind(err))
	}
	want := `saving profile "default": disk full`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, KindIO, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, KindIO, "x") != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestAttr(t *testing.T) {
	err := Errorf(KindSubprocess, "nft exited 1")
	err = Attr(err, "stderr", "syntax error")
	err = Attr(err, "exit_code", 1)

	attrs := GetAttributes(err)
	if attrs["stderr"] != "syntax error" {
		t.Errorf("stderr attr = %v", attrs["stderr"])
	}
	if attrs["exit_code"] != 1 {
		t.Errorf("exit_code attr = %v", attrs["exit_code"])
	}
}

func TestAttrOnForeignError(t *testing.T) {
	err := Attr(stderrors.New("plain"), "k", "v")
	if GetKind(err) != KindInternal {
		t.Errorf("foreign errors should be wrapped as KindInternal, got %v", GetKind(err))
	}
	if GetAttributes(err)["k"] != "v" {
		t.Error("attribute lost on foreign error")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:    "unknown",
		KindInternal:   "internal",
		KindValidation: "validation",
		KindCodec:      "codec",
		KindIO:         "io",
		KindSubprocess: "subprocess",
		KindTimeout:    "timeout",
		KindIntegrity:  "integrity",
		KindNotFound:   "not_found",
		KindConflict:   "conflict",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
