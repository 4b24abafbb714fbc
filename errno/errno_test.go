package errno

import (
	"errors"
	"testing"
)

func TestErrorStrings(t *testing.T) {
	if NoSuchFile.Error() != "no such file or directory" {
		t.Fatalf("unexpected message: %q", NoSuchFile.Error())
	}
	if got := Errno(999).Error(); got != "errno(999)" {
		t.Fatalf("unknown errno should fall back to numeric form, got %q", got)
	}
}

func TestWrapPreservesIs(t *testing.T) {
	err := Wrap(BadFD, "read fd 7")
	if !errors.Is(err, BadFD) {
		t.Fatalf("wrapped error lost errors.Is comparability")
	}
	if errors.Is(err, NoSpace) {
		t.Fatalf("wrapped error matched the wrong sentinel")
	}
	if got := err.Error(); got != "read fd 7: bad file descriptor" {
		t.Fatalf("unexpected wrapped message: %q", got)
	}
}
