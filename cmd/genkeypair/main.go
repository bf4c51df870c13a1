// main.go - onionmix relay keypair generator.
// Copyright (C) 2026  The onionmix Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onionmix/onionmix/common"
	"github.com/onionmix/onionmix/core/crypto/pke"
	"github.com/onionmix/onionmix/core/utils"
)

var (
	errBothKeysExist = errors.New("both keys already exist")
	errOneKeyExists  = errors.New("one of the keys already exists")
)

// Config holds the command line configuration.
type Config struct {
	Scheme string
	Out    string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "genkeypair",
		Short: "Generate a relay keypair",
		Long: `Generates a relay keypair and writes it to <out>.private.pem and
<out>.public.pem.  Existing keys are never overwritten.

The scheme is either RSA-OAEP-2048 or the name of any KEM known to hpqc,
for example x25519, MLKEM768 or MLKEM768-X25519.`,
		Example: `  # Generate an RSA keypair
  genkeypair --out relay

  # Generate a post quantum keypair
  genkeypair --scheme MLKEM768 --out relay`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.Scheme, "scheme", "s", pke.DefaultSchemeName,
		"name of the key scheme")
	cmd.Flags().StringVarP(&cfg.Out, "out", "o", "out",
		"output keypair name")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func run(cmd *cobra.Command, cfg Config) error {
	if cfg.Out == "" {
		return errors.New("invalid argument: out cannot be empty")
	}
	scheme := pke.ByName(cfg.Scheme)
	if scheme == nil {
		return fmt.Errorf("invalid argument: unknown scheme '%v'", cfg.Scheme)
	}

	privOut := cfg.Out + ".private.pem"
	pubOut := cfg.Out + ".public.pem"
	switch {
	case utils.BothExists(privOut, pubOut):
		return errBothKeysExist
	case !utils.BothNotExists(privOut, pubOut):
		return errOneKeyExists
	}

	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err = pke.PrivateKeyToFile(privOut, sk); err != nil {
		return err
	}
	if err = pke.PublicKeyToFile(pubOut, pk); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %v keypair to %s and %s\n", scheme.Name(), privOut, pubOut)
	fmt.Fprintf(out, "Fingerprint: %s\n", pke.Fingerprint(pk))
	fmt.Fprintln(out, common.TruncatePEM(string(pke.PublicKeyToPEM(pk))))
	return nil
}
