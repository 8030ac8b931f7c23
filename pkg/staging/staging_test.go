package staging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "b1_numbers.csv", Key("b1", "numbers.csv"))
	assert.Equal(t, "b1_numbers.csv", Key("b1", "../../etc/numbers.csv"))
	assert.Equal(t, "b1_numbers.csv", Key("b1", `C:\uploads\numbers.csv`))
	assert.Equal(t, "b1_upload.csv", Key("b1", ""))
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("b1_numbers.csv"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey("../x"))
	assert.Error(t, ValidateKey("a/b"))
}
