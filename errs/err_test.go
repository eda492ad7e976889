package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestErr(t *testing.T) {
	err := ConnectFailed.Printf("service %s", "users")
	fmt.Println(err)
	if !errors.Is(err, ConnectFailed) {
		t.Fatal("errors.Is should match by code")
	}
	if errors.Is(err, CallTimeout) {
		t.Fatal("different codes should not match")
	}
}

func TestWrap(t *testing.T) {
	err := WrapError(errors.New("boom"))
	if err.Code() != ErrCode_Unknown {
		t.Fatalf("wrap code = %d", err.Code())
	}
}
