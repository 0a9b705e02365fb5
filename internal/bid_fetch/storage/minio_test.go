package storage

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectURL(t *testing.T) {
	ep := &url.URL{Scheme: "https", Host: "minio.internal:9000"}
	assert.Equal(t, "https://minio.internal:9000/attachments/abc/R1_%EA%B3%B5%EA%B3%A0.pdf",
		objectURL(ep, "attachments", "abc/R1_공고.pdf"))

	assert.Equal(t, "http://localhost:9000/b/k.hwp", objectURL(&url.URL{Host: "localhost:9000"}, "b", "k.hwp"))
}
