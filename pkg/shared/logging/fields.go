// Package logging provides a fluent structured-field builder consumed by
// go.uber.org/zap across every component, plus a small set of ready-made
// field sets for common component categories.
package logging

import "time"

// Fields is a chainable builder over a plain field map.
type Fields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus returns the field map in the shape logrus.Fields expects,
// for the CLI-wrapped and local-model LLM providers that log through
// sirupsen/logrus instead of zap.
func (f Fields) ToLogrus() map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DatabaseFields seeds a field set for a learning-store/template-store
// database operation.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields seeds a field set for an outbound or inbound HTTP call.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// PipelineFields seeds a field set for a generator/fixer/supervisor
// operation against one artifact set.
func PipelineFields(operation, artifactSetID string) Fields {
	return NewFields().Component("pipeline").Operation(operation).Resource("artifact_set", artifactSetID)
}

// RegistryFields seeds a field set for a registry-gateway operation against
// one image reference, optionally scoped to a repository namespace.
func RegistryFields(operation, imageRef, namespace string) Fields {
	f := NewFields().Component("registry").Operation(operation).Resource("image", imageRef)
	if namespace != "" {
		f["namespace"] = namespace
	}
	return f
}

// AIFields seeds a field set for an LLM provider call.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields seeds a field set for a metrics-recording call.
func MetricsFields(operation, metricName string, value interface{}) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields seeds a field set for an auth/credential operation.
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields seeds a field set for a timed operation's outcome.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(d).Custom("success", success)
}
