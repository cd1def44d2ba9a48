package patterns

import (
	"strings"
	"testing"
)

func TestDecodeResponse(t *testing.T) {
	const body = `{"recurring_patterns":[{"merchant_pattern":"NETFLIX","suggested_name":"Netflix","transaction_ids":["a","b"],"frequency":"monthly","average_amount":-15.99,"confidence":0.92}]}`

	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "plain json", raw: body, want: 1},
		{name: "json fence", raw: "```json\n" + body + "\n```", want: 1},
		{name: "bare fence", raw: "```\n" + body + "\n```", want: 1},
		{name: "prose around", raw: "Here you go:\n" + body + "\nHope this helps", want: 1},
		{name: "no patterns", raw: `{"recurring_patterns": []}`, want: 0},
		{name: "missing key", raw: `{}`, want: 0},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "garbage", raw: "not json at all", wantErr: true},
		{name: "wrong shape", raw: `{"recurring_patterns": "nope"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResponse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeResponse() error = %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d patterns, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDecodeResponse_Fields(t *testing.T) {
	got, err := DecodeResponse(`{"recurring_patterns":[{"merchant_pattern":"SPOTIFY","suggested_name":"Spotify","transaction_ids":["x","y","z"],"frequency":"monthly","average_amount":"9.99","confidence":0.8}]}`)
	if err != nil {
		t.Fatal(err)
	}
	p := got[0]
	if p.MerchantPattern != "SPOTIFY" || p.SuggestedName != "Spotify" || p.Frequency != "monthly" {
		t.Fatalf("unexpected pattern %+v", p)
	}
	if len(p.TransactionIDs) != 3 || p.AverageAmount.String() != "9.99" || p.Confidence != 0.8 {
		t.Fatalf("unexpected pattern %+v", p)
	}
}

func TestUserPrompt(t *testing.T) {
	prompt, err := UserPrompt([]TransactionInput{{ID: "t1", Date: "2024-01-15", Amount: -15.99, Merchant: "Netflix", RawDescription: "NETFLIX.COM"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"id": "t1"`, `"amount": -15.99`, `"raw_description": "NETFLIX.COM"`, "confidence > 0.5"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
