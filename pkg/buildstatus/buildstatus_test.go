package buildstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMessage(t *testing.T) {
	assert.Equal(t, "Docker image 'myapp:latest' exists.", StatusMessage("myapp:latest", true))
	assert.Equal(t, "Docker image 'myapp:latest' does not exist.", StatusMessage("myapp:latest", false))
}
