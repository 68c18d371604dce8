package mail_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hal9000y/mailmirror/internal/mail"
)

func TestSplitAddresses(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected []string
	}{
		{
			name:     "mixed separators and casing",
			raw:      "a@x.com, A@X.com; b@y.com",
			expected: []string{"a@x.com", "b@y.com"},
		},
		{
			name:     "first casing wins",
			raw:      "Bob@Y.com;bob@y.com",
			expected: []string{"Bob@Y.com"},
		},
		{
			name:     "blank chunks dropped",
			raw:      " , ;c@z.com,, ",
			expected: []string{"c@z.com"},
		},
		{
			name:     "empty",
			raw:      "   ",
			expected: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mail.SplitAddresses(tc.raw))
		})
	}
}

func TestClampPriority(t *testing.T) {
	assert.Equal(t, 1, mail.ClampPriority(-4))
	assert.Equal(t, 1, mail.ClampPriority(0))
	assert.Equal(t, 2, mail.ClampPriority(2))
	assert.Equal(t, 3, mail.ClampPriority(99))
}

func TestCoerceType(t *testing.T) {
	assert.Equal(t, mail.TypeJunkUncertain, mail.CoerceType(" Junk-Uncertain "))
	assert.Equal(t, mail.TypeDraft, mail.CoerceType("draft"))
	assert.Equal(t, mail.TypeReadOnly, mail.CoerceType("newsletter"))
	assert.Equal(t, mail.TypeReadOnly, mail.CoerceType(""))

	_, ok := mail.ParseType("archived")
	assert.False(t, ok)
}

func TestPrimary(t *testing.T) {
	msgs := []mail.Message{
		{ID: 1, Type: mail.TypeResponseNeeded},
		{ID: 2, Type: mail.TypeSent},
		{ID: 3, Type: mail.TypeDraft},
		{ID: 4, Type: mail.TypeJunkUncertain},
	}

	primary := mail.Primary(msgs)

	ids := make([]int64, 0, len(primary))
	for _, m := range primary {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{1, 4}, ids)
}

func TestReplySubject(t *testing.T) {
	assert.Equal(t, "Re: Invoice", mail.ReplySubject("Invoice"))
	assert.Equal(t, "RE: Invoice", mail.ReplySubject("RE: Invoice"))
	assert.Equal(t, "Re: (No subject)", mail.ReplySubject(""))
}
