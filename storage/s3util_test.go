package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestNormalizeS3Prefix(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"prefix", "prefix/"},
		{"/prefix/", "prefix/"},
		{"prefix/", "prefix/"},
		{"/prefix", "prefix/"},
	}
	for _, c := range cases {
		got := normalizeS3Prefix(c.in)
		if got != c.want {
			t.Errorf("normalizeS3Prefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestApplyS3Prefix(t *testing.T) {
	cases := []struct {
		prefix, name, want string
	}{
		{"", "foo", "foo"},
		{"prefix/", "bar", "prefix/bar"},
		{"prefix/", "", "prefix/"},
		{"", "", ""},
	}
	for _, c := range cases {
		got := applyS3Prefix(c.prefix, c.name)
		if got != c.want {
			t.Errorf("applyS3Prefix(%q, %q) = %q, want %q", c.prefix, c.name, got, c.want)
		}
	}
}

func TestIsS3NotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no such key", &types.NoSuchKey{}, true},
		{"wrapped not found", fmt.Errorf("head: %w", &types.NotFound{}), true},
		{"generic api 404", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("connection reset"), false},
	}
	for _, c := range cases {
		if got := isS3NotFound(c.err); got != c.want {
			t.Errorf("%s: isS3NotFound() = %v, want %v", c.name, got, c.want)
		}
	}
}
