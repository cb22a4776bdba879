package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storefront/config"
	"storefront/entity"
	"storefront/internal"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "storefrontctl",
		Short:        "Operator tools for the storefront payment service",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("conf", "c", "config.yml", "path to config file")

	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("conf")
	return config.Load(path)
}

// passphrase prefers the flag over the configured value
func passphrase(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("passphrase") {
		return cmd.Flags().GetString("passphrase")
	}
	conf, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return conf.PayFast.Passphrase, nil
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign key=value...",
		Short: "Print the signature string and signature of a field set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := entity.PaymentFields{}
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok || key == "" {
					return fmt.Errorf("expected key=value, got %q", arg)
				}
				fields[key] = value
			}

			secret, err := passphrase(cmd)
			if err != nil {
				return err
			}
			signer := internal.NewSigner(secret)

			fmt.Printf("canonical: %s\n", internal.EncodeCanonical(fields))
			fmt.Printf("signature: %s\n", signer.Sign(fields))
			return nil
		},
	}

	cmd.Flags().StringP("passphrase", "p", "", "passphrase, overrides the configured one")

	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [body]",
		Short: "Check the signature of a notification body, read from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			if len(args) == 1 {
				body = []byte(args[0])
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				body = data
			}

			notification, err := internal.ParseNotification(body)
			if err != nil {
				return err
			}
			secret, err := passphrase(cmd)
			if err != nil {
				return err
			}
			signer := internal.NewSigner(secret)

			fmt.Printf("order:     %s\n", notification.OrderId())
			fmt.Printf("status:    %s\n", notification.Status())
			fmt.Printf("expected:  %s\n", signer.Sign(notification.Fields))
			fmt.Printf("received:  %s\n", notification.Signature)
			if !signer.Verify(notification.Fields, notification.Signature) {
				return internal.ErrSignatureMismatch
			}
			fmt.Println("signature valid")
			return nil
		},
	}

	cmd.Flags().StringP("passphrase", "p", "", "passphrase, overrides the configured one")

	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [order_id]",
		Short: "Follow an order until its payment status settles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			interval, _ := cmd.Flags().GetDuration("interval")
			cutoff, _ := cmd.Flags().GetDuration("cutoff")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			commerce := internal.NewCommerceClient(conf)
			poller := internal.NewOrderPoller(commerce.GetOrder)
			poller.SetSchedule(interval, cutoff)

			order, outcome := poller.Watch(ctx, args[0], func(update internal.PollUpdate) {
				now := time.Now().Format(time.TimeOnly)
				if update.Err != nil {
					fmt.Printf("%s  error: %v\n", now, update.Err)
					return
				}
				fmt.Printf("%s  order %d: %s; total %s %s\n", now, update.Order.Id, update.Order.Status, update.Order.Total, update.Order.Currency)
			})

			if order == nil {
				return fmt.Errorf("order %s: %s without a successful fetch", args[0], outcome)
			}
			fmt.Printf("%s: order %d is %s\n", outcome, order.Id, order.Status)
			return nil
		},
	}

	cmd.Flags().Duration("interval", 5*time.Second, "poll interval")
	cmd.Flags().Duration("cutoff", 2*time.Minute, "give up after this long")

	return cmd
}
