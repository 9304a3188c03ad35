package observe

import (
	"os"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]string {
	m := make(map[attribute.Key]string, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value.Emit()
	}
	return m
}

func TestResourceAttributes(t *testing.T) {
	t.Parallel()
	host, _ := os.Hostname()

	tests := []struct {
		name string
		cfg  ProviderConfig
		want map[attribute.Key]string
	}{
		{
			name: "defaults",
			cfg:  ProviderConfig{},
			want: map[attribute.Key]string{
				semconv.ServiceNameKey:       DefaultServiceName,
				semconv.ServiceInstanceIDKey: host,
			},
		},
		{
			name: "all service fields",
			cfg: ProviderConfig{
				ServiceName:      "vilakkam-api",
				ServiceVersion:   "1.4.0",
				ServiceNamespace: "assistants",
				InstanceID:       "pod-7",
				Environment:      "staging",
			},
			want: map[attribute.Key]string{
				semconv.ServiceNameKey:           "vilakkam-api",
				semconv.ServiceVersionKey:        "1.4.0",
				semconv.ServiceNamespaceKey:      "assistants",
				semconv.ServiceInstanceIDKey:     "pod-7",
				semconv.DeploymentEnvironmentKey: "staging",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := attrMap(resourceAttributes(tc.cfg))
			if host == "" {
				delete(tc.want, semconv.ServiceInstanceIDKey)
			}
			if len(got) != len(tc.want) {
				t.Errorf("got %d attributes %v, want %d", len(got), got, len(tc.want))
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
