package storage

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNotFound(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":               {err: nil},
		"no such key":       {err: minio.ErrorResponse{Code: "NoSuchKey"}, want: true},
		"wrapped":           {err: fmt.Errorf("read cv: %w", minio.ErrorResponse{Code: "NoSuchBucket"}), want: true},
		"status only":       {err: minio.ErrorResponse{StatusCode: http.StatusNotFound}, want: true},
		"gateway text":      {err: errors.New("The specified key does not exist."), want: true},
		"access denied":     {err: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}},
		"unrelated failure": {err: errors.New("connection reset by peer")},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := IsNotFound(tc.err); got != tc.want {
				t.Fatalf("IsNotFound(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
