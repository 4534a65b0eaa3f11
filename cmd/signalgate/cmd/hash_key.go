package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalgate/signalgate/internal/domain/auth"
)

var hashKeySHA256 bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Hash an API key for use in auth.api_keys",
	Long: `Hash an API key for storage in the auth.api_keys config list.

By default the key is hashed with Argon2id (PHC format). Pass --sha256
for the legacy "sha256:<hex>" format; both are accepted by the server.

Example:
  signalgate hash-key "my-secret-api-key"

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  signalgate hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashKeySHA256 {
			fmt.Printf("sha256:%s\n", auth.HashKey(args[0]))
			return nil
		}
		hash, err := auth.HashKeyArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash key: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeySHA256, "sha256", false, "emit a SHA-256 hash instead of Argon2id")
	rootCmd.AddCommand(hashKeyCmd)
}
