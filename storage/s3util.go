package storage

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// normalizeS3Prefix strips leading and trailing slashes and, for a non-empty
// prefix, appends exactly one.
func normalizeS3Prefix(prefix string) string {
	p := strings.Trim(prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func applyS3Prefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	// Ensure there is exactly one slash between prefix and name
	if strings.HasSuffix(prefix, "/") {
		return prefix + name
	}
	return prefix + "/" + name
}

// isS3NotFound reports whether err means the object does not exist.
func isS3NotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	// HeadObject errors carry no body, only the status code
	return strings.Contains(err.Error(), "StatusCode: 404")
}
