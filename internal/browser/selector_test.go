// internal/browser/selector_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/listing-refresher/api/schemas"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		strategy schemas.Strategy
		value    string
		want     string
	}{
		{schemas.ByID, "email", `[id="email"]`},
		{schemas.ByName, "pass", `[name="pass"]`},
		{schemas.ByName, `we"ird`, `[name="we\"ird"]`},
		{schemas.ByCSS, `div[role="navigation"]`, `div[role="navigation"]`},
		{schemas.ByTag, "h3", "h3"},
		{schemas.ByExactText, "Edit", `//*[normalize-space(text())='Edit']`},
		{schemas.ByPartialText, "Save", `//*[contains(text(),'Save')]`},
		{schemas.ByXPath, "//a[contains(@href,'/marketplace/item/')]", "//a[contains(@href,'/marketplace/item/')]"},
	}
	for _, tt := range tests {
		t.Run(string(tt.strategy)+"/"+tt.value, func(t *testing.T) {
			q, err := translate(tt.strategy, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.sel)
			assert.NotNil(t, q.by)
		})
	}

	_, err := translate("link-text", "x")
	assert.Error(t, err)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, "'Home'", XPathLiteral("Home"))
	assert.Equal(t, `"Don't"`, XPathLiteral("Don't"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, XPathLiteral(`a'b"c`))
}
