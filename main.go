// @title CPU Alert Notifier API
// @version 1.0
// @description Receives Cloud Monitoring alerts over Pub/Sub push and emails on high CPU usage.
// @BasePath /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/kube-rca/cpu-alert-notifier/internal/client"
	"github.com/kube-rca/cpu-alert-notifier/internal/config"
	"github.com/kube-rca/cpu-alert-notifier/internal/handler"
	"github.com/kube-rca/cpu-alert-notifier/internal/logging"
	"github.com/kube-rca/cpu-alert-notifier/internal/service"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cpu-alert-notifier",
		Usage: "Log Cloud Monitoring CPU alerts and email on high usage",
		Commands: []*cli.Command{
			newServeCmd(),
			newPullCmd(),
			newTestEmailCmd(),
		},
		// 명령 없이 실행하면 push 서버로 동작
		DefaultCommand: "serve",
	}
}

// notifier - 명령 실행에 필요한 공통 객체
type notifier struct {
	cfg     config.Config
	logger  *zap.Logger
	alerts  *service.AlertService
	closers []func() error
}

func (r *notifier) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}

// setup - 설정 로드, 검증, 로거/싱크/메일러 생성
func setup(ctx context.Context, validate func(config.Config) error) (*notifier, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	n := &notifier{cfg: cfg, logger: logger}

	var sink client.LogSink
	switch cfg.Log.AlertSink {
	case config.SinkCloud:
		cloudSink, err := client.NewCloudLoggingSink(ctx, cfg.GCP.ProjectID, cfg.Log.AlertLogName)
		if err != nil {
			n.close()
			return nil, err
		}
		n.closers = append(n.closers, cloudSink.Close)
		sink = cloudSink
	default:
		sink = client.NewZapSink(logger, cfg.Log.AlertLogName)
	}

	mailer := client.NewSMTPClient(cfg.SMTP)
	n.alerts = service.NewAlertService(sink, mailer, logger)

	logger.Info("notifier configured",
		zap.String("alert_sink", cfg.Log.AlertSink),
		zap.String("alert_log_name", cfg.Log.AlertLogName),
		zap.String("smtp_host", cfg.SMTP.Host),
		zap.Int("smtp_port", cfg.SMTP.Port),
	)
	return n, nil
}

func newServeCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the Pub/Sub push endpoint over HTTP",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := setup(ctx, config.Config.Validate)
			if err != nil {
				return err
			}
			defer n.close()

			auth, err := service.NewPushAuthenticator(ctx, n.cfg.Auth)
			if err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			pushHandler := handler.NewPubSubHandler(n.alerts, n.cfg.Server.RequestTimeout, n.logger)
			router := handler.NewRouter(pushHandler, auth, handler.ServiceInfo{
				AlertSink:    n.cfg.Log.AlertSink,
				AlertLogName: n.cfg.Log.AlertLogName,
				PushAuth:     n.cfg.Auth.Mode,
			}, n.logger)

			srv := &http.Server{
				Addr:              ":" + n.cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				n.logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("push_auth", n.cfg.Auth.Mode))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			n.logger.Info("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown failed: %w", err)
			}
			return nil
		},
	}
}

func newPullCmd() *cli.Command {
	return &cli.Command{
		Name:  "pull",
		Usage: "Receive alerts from a Pub/Sub subscription",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := setup(ctx, config.Config.ValidatePull)
			if err != nil {
				return err
			}
			defer n.close()

			sub, err := client.NewSubscriber(ctx, n.cfg.GCP.ProjectID, n.cfg.PubSub.Subscription, n.cfg.PubSub.MaxOutstanding, n.logger)
			if err != nil {
				return err
			}
			n.closers = append(n.closers, sub.Close)

			// 클라이언트 라이브러리가 base64 를 이미 풀어서 전달한다
			return sub.Run(ctx, func(ctx context.Context, msg *pubsub.Message) error {
				_, err := n.alerts.HandlePayload(ctx, msg.ID, msg.Data)
				return err
			})
		},
	}
}

func newTestEmailCmd() *cli.Command {
	return &cli.Command{
		Name:  "test-email",
		Usage: "Send a sample alert email with the configured SMTP settings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "instance",
				Usage: "instance id placed in the email body",
				Value: "test-instance",
			},
			&cli.StringFlag{
				Name:  "value",
				Usage: "CPU value placed in the email body",
				Value: "99",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, cfg.Server.RequestTimeout)
			defer cancel()

			if err := client.NewSMTPClient(cfg.SMTP).SendAlert(ctx, c.String("instance"), c.String("value")); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "test email sent to %s\n", cfg.SMTP.To)
			return nil
		},
	}
}
