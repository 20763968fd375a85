package cmd

import (
	"testing"

	"github.com/justapithecus/ndarchive/cli/config"
)

func TestBuildAdapters(t *testing.T) {
	zero := 0
	tests := []struct {
		name    string
		notify  config.NotifyConfig
		want    int
		wantErr bool
	}{
		{name: "none configured", want: 0},
		{
			name:   "webhook only",
			notify: config.NotifyConfig{Webhook: config.WebhookConfig{URL: "http://localhost:9/hook", Retries: &zero}},
			want:   1,
		},
		{
			name: "both",
			notify: config.NotifyConfig{
				Webhook: config.WebhookConfig{URL: "http://localhost:9/hook"},
				Redis:   config.RedisConfig{URL: "redis://localhost:6379/0"},
			},
			want: 2,
		},
		{
			name:    "invalid redis url",
			notify:  config.NotifyConfig{Redis: config.RedisConfig{URL: "not a url://"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapters, err := buildAdapters(tt.notify)
			if tt.wantErr {
				if err == nil {
					closeAdapters(adapters)
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildAdapters: %v", err)
			}
			defer closeAdapters(adapters)
			if len(adapters) != tt.want {
				t.Errorf("got %d adapters, want %d", len(adapters), tt.want)
			}
		})
	}
}
