package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-deposit-backend/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledConfig(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prev := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, "v0.0.0")
	if err != nil || shutdown == nil {
		t.Fatalf("shutdown=%v err=%v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("disabled setup must not touch globals")
	}
}

func TestSetupOTel_Enabled_SetsProviderAndPropagator(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)

		shutdown, err := SetupOTel(context.Background(), enabledConfig("depositd-test", insecure), "v1.2.3")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("expected *sdktrace.TracerProvider")
		}

		ctx, span := otel.Tracer("test").Start(context.Background(), "deposit.create")
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		span.End()
		if carrier.Get("traceparent") == "" {
			t.Fatalf("traceparent not injected")
		}

		sctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = shutdown(sctx)
		cancel()
	}
}

func TestSetupOTel_CanceledContext_StillSucceeds(t *testing.T) {
	preserveOTelGlobals(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	shutdown, err := SetupOTel(ctx, enabledConfig("svc-canceled", true), "vX")
	if err != nil {
		t.Fatalf("unexpected err with canceled ctx: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestSetupOTel_SeamErrors_LeaveGlobalsIntact(t *testing.T) {
	cases := []struct {
		name  string
		patch func() (restore func())
	}{
		{"exporter", func() func() {
			orig := newOTLPExporterFn
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("boom-exporter")
			}
			return func() { newOTLPExporterFn = orig }
		}},
		{"resource", func() func() {
			orig := newServiceResourceFn
			newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
			return func() { newServiceResourceFn = orig }
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			preserveOTelGlobals(t)
			t.Cleanup(tc.patch())

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()
			if _, err := SetupOTel(context.Background(), enabledConfig("svc", true), "v0"); err == nil {
				t.Fatalf("expected error")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestInstrumentDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:oteldb?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := InstrumentDB(db, config.OTELConfig{}); err != nil {
		t.Fatalf("disabled: %v", err)
	}
	if len(db.Config.Plugins) != 0 {
		t.Fatalf("disabled config must not register plugins")
	}

	if err := InstrumentDB(db, enabledConfig("svc", true)); err != nil {
		t.Fatalf("enabled: %v", err)
	}
	if len(db.Config.Plugins) != 1 {
		t.Fatalf("expected tracing plugin, got %d plugins", len(db.Config.Plugins))
	}
	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("instrumented query: %v", err)
	}
}
