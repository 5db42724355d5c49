package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		q     Quoter
		want  string
	}{
		{name: "plain", input: "officers", q: DoubleQuote, want: "officers"},
		{name: "underscore", input: "payment_links", q: DoubleQuote, want: "payment_links"},
		{name: "upper case", input: "Officers", q: DoubleQuote, want: `"Officers"`},
		{name: "reserved", input: "user", q: DoubleQuote, want: `"user"`},
		{name: "reserved order", input: "order", q: BacktickQuote, want: "`order`"},
		{name: "hyphen", input: "e-mail", q: BracketQuote, want: "[e-mail]"},
		{name: "embedded quote", input: `a"b`, q: DoubleQuote, want: `"a""b"`},
		{name: "embedded bracket", input: "a]b", q: BracketQuote, want: "[a]]b]"},
		{name: "embedded backtick", input: "a`b", q: BacktickQuote, want: "`a``b`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Ident(tt.input, tt.q))
		})
	}
}

func TestTableIdent_SchemaQualified(t *testing.T) {
	assert.Equal(t, `public."Officers"`, TableIdent("public.Officers", DoubleQuote))
	assert.Equal(t, "dbo.clubs", TableIdent("dbo.clubs", BracketQuote))
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "simple", input: "officers"},
		{name: "qualified", input: "public.officers"},
		{name: "mixed case", input: "PaymentLinks"},
		{name: "hyphen", input: "payment-links"},
		{name: "empty", input: "", wantErr: "table name is required"},
		{name: "empty part", input: "public.", wantErr: "empty name part"},
		{name: "too long", input: strings.Repeat("a", 129), wantErr: "at most 128 characters"},
		{name: "starts with digit", input: "1table", wantErr: "must match"},
		{name: "semicolon", input: "foo;DROP", wantErr: "must match"},
		{name: "quote", input: `foo"bar`, wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateColumnType(t *testing.T) {
	for _, ok := range []string{"SERIAL", "VARCHAR(255)", "DECIMAL(10, 2)", "TEXT[]", "NVARCHAR(MAX)", "timestamp with time zone"} {
		require.NoError(t, ValidateColumnType(ok), ok)
	}
	for _, bad := range []string{"", "TEXT; DROP TABLE x", "INT -- comment", "VARCHAR(abc)", strings.Repeat("A", 65)} {
		require.Error(t, ValidateColumnType(bad), bad)
	}
}
