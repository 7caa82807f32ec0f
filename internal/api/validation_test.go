package api

import "testing"

func TestValidateStart(t *testing.T) {
	cases := []struct {
		name    string
		req     StartRequest
		wantErr bool
	}{
		{"empty request", StartRequest{}, false},
		{"full request", StartRequest{IntervalHours: 6, MaxPostsPerDay: 4, Category: "tech"}, false},
		{"valid cron", StartRequest{CronExpression: "0 */6 * * *"}, false},
		{"invalid cron", StartRequest{CronExpression: "not a cron"}, true},
		{"negative interval", StartRequest{IntervalHours: -1}, true},
		{"negative posts", StartRequest{MaxPostsPerDay: -1}, true},
		{"negative length", StartRequest{ArticleLength: -100}, true},
		{"negative images", StartRequest{ImagesPerArticle: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateStart(tc.req)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateDomainName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"example.com", false},
		{"sub.example-site.co.uk", false},
		{"localhost", false},
		{"", true},
		{".example.com", true},
		{"example.com.", true},
		{"exa mple.com", true},
		{"exa_mple.com", true},
	}

	for _, tc := range cases {
		err := validateDomainName(tc.name)
		if tc.wantErr && err == nil {
			t.Errorf("%q: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%q: unexpected error: %v", tc.name, err)
		}
	}
}
