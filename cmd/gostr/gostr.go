package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"log"

	"github.com/nostrc/gostr/bchan"
	"github.com/nostrc/gostr/crypto"
	"github.com/nostrc/gostr/model"
	"github.com/nostrc/gostr/nip06"
	"github.com/nostrc/gostr/nip19"
	"github.com/nostrc/gostr/nip49"
	"github.com/nostrc/gostr/relay"
)

var (
	gostr = &cobra.Command{
		Use:           "gostr",
		Short:         "nostr protocol debugging tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	keyCmd = &cobra.Command{Use: "key", Short: "key generation and inspection"}

	keyGenCmd = &cobra.Command{
		Use:   "gen",
		Short: "generate a fresh keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			defer crypto.Zero(sk)

			return printKeyPair(sk)
		},
	}

	keyPubCmd = &cobra.Command{
		Use:   "pub <nsec|hex>",
		Short: "derive the public key of a private key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := parsePrivateKey(args[0])
			if err != nil {
				return err
			}
			defer crypto.Zero(sk)
			pk, err := crypto.PublicKey(sk)
			if err != nil {
				return err
			}
			npub, err := nip19.EncodePub(hex.EncodeToString(pk))
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(pk))
			fmt.Println(npub)

			return nil
		},
	}

	encodeCmd = &cobra.Command{
		Use:       "encode <npub|nsec|note> <hex>",
		Short:     "bech32-encode a 32-byte hex value",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"npub", "nsec", "note"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var code string
			var err error
			switch args[0] {
			case "npub":
				code, err = nip19.EncodePub(args[1])
			case "nsec":
				code, err = nip19.EncodeSec(args[1])
			case "note":
				code, err = nip19.EncodeNote(args[1])
			default:
				err = errors.Newf("unknown entity %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Println(code)

			return nil
		},
	}

	decodeCmd = &cobra.Command{
		Use:   "decode <bech32|nostr-uri>",
		Short: "decode any nip19 pointer or nostr: uri",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pointer nip19.Pointer
			var err error
			if strings.Contains(args[0], ":") {
				pointer, err = nip19.ParseURI(args[0])
			} else {
				pointer, err = nip19.Decode(args[0])
			}
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{
				fmt.Sprintf("%T", pointer): pointer,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			return nil
		},
	}

	mnemonicBits       int
	mnemonicPassphrase string
	mnemonicAccount    uint32
	mnemonicCmd        = &cobra.Command{
		Use:   "mnemonic [phrase]",
		Short: "generate a mnemonic (or derive keys from an existing one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mnemonic string
			if len(args) == 1 {
				mnemonic = args[0]
				if !nip06.ValidateMnemonic(mnemonic) {
					return errors.New("mnemonic failed checksum validation")
				}
			} else {
				var err error
				if mnemonic, err = nip06.GenerateMnemonic(mnemonicBits); err != nil {
					return err
				}
				fmt.Println(mnemonic)
			}
			sk, err := nip06.PrivateKey(mnemonic, mnemonicPassphrase, mnemonicAccount)
			if err != nil {
				return err
			}
			defer crypto.Zero(sk)

			return printKeyPair(sk)
		},
	}

	ncryptsecLogN int
	ncryptsecCmd  = &cobra.Command{Use: "ncryptsec", Short: "password-encrypted private key export"}

	ncryptsecEncryptCmd = &cobra.Command{
		Use:   "encrypt <nsec|hex>",
		Short: "encrypt a private key under a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := parsePrivateKey(args[0])
			if err != nil {
				return err
			}
			defer crypto.Zero(sk)
			password, err := promptPassword("password: ")
			if err != nil {
				return err
			}
			code, err := nip49.Encrypt(sk, password, ncryptsecLogN, nip49.KnownSecure)
			if err != nil {
				return err
			}
			fmt.Println(code)

			return nil
		},
	}

	ncryptsecDecryptCmd = &cobra.Command{
		Use:   "decrypt <ncryptsec>",
		Short: "decrypt an ncryptsec export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword("password: ")
			if err != nil {
				return err
			}
			sk, security, logN, err := nip49.Decrypt(args[0], password)
			if err != nil {
				return err
			}
			defer crypto.Zero(sk)
			log.Printf("security=%v log_n=%v", security, logN)

			return printKeyPair(sk)
		},
	}

	tailKinds   []int
	tailAuthors []string
	tailLimit   int
	tailCmd     = &cobra.Command{
		Use:   "tail <relay-url>",
		Short: "stream matching events from a relay as json lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return tail(ctx, args[0])
		},
	}
)

func init() {
	keyCmd.AddCommand(keyGenCmd, keyPubCmd)
	mnemonicCmd.Flags().IntVar(&mnemonicBits, "bits", 128, "mnemonic entropy in bits (128 = 12 words, 256 = 24)")
	mnemonicCmd.Flags().StringVar(&mnemonicPassphrase, "passphrase", "", "optional bip39 passphrase")
	mnemonicCmd.Flags().Uint32Var(&mnemonicAccount, "account", 0, "derivation account index")
	ncryptsecEncryptCmd.Flags().IntVar(&ncryptsecLogN, "log-n", 16, "scrypt work factor exponent (10..22)")
	ncryptsecCmd.AddCommand(ncryptsecEncryptCmd, ncryptsecDecryptCmd)
	tailCmd.Flags().IntSliceVar(&tailKinds, "kind", nil, "event kinds to match")
	tailCmd.Flags().StringSliceVar(&tailAuthors, "author", nil, "author pubkeys (hex) to match")
	tailCmd.Flags().IntVar(&tailLimit, "limit", 0, "cap on historical events")
	gostr.AddCommand(keyCmd, encodeCmd, decodeCmd, mnemonicCmd, ncryptsecCmd, tailCmd)
}

func printKeyPair(sk []byte) error {
	pk, err := crypto.PublicKey(sk)
	if err != nil {
		return err
	}
	nsec, err := nip19.EncodeSec(hex.EncodeToString(sk))
	if err != nil {
		return err
	}
	npub, err := nip19.EncodePub(hex.EncodeToString(pk))
	if err != nil {
		return err
	}
	fmt.Printf("nsec: %v\nnpub: %v\npubkey: %v\n", nsec, npub, hex.EncodeToString(pk))

	return nil
}

func main() {
	if err := gostr.Execute(); err != nil {
		log.Panic(err)
	}
}

func parsePrivateKey(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "nsec1") {
		pointer, err := nip19.Decode(arg)
		if err != nil {
			return nil, err
		}
		sec, isSec := pointer.(nip19.SecKey)
		if !isSec {
			return nil, errors.New("not an nsec code")
		}

		return crypto.Decode32(string(sec))
	}

	return crypto.Decode32(arg)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "failed to read password")
	}

	return string(password), nil
}

func tail(ctx context.Context, rawURL string) error {
	r, err := relay.Connect(ctx, rawURL)
	if err != nil {
		return err
	}
	defer r.Close()

	filter := model.Filter{Kinds: tailKinds, Authors: tailAuthors, Limit: tailLimit}
	sub, err := r.Subscribe(ctx, model.Filters{filter})
	if err != nil {
		return err
	}
	defer sub.Close()

	go func() {
		if _, err := sub.EndOfStoredEvents().Receive(ctx); err == nil {
			log.Printf("-- end of stored events --")
		}
	}()
	go func() {
		if reason, err := sub.ClosedReason().Receive(ctx); err == nil {
			log.Printf("WARN: subscription closed: %v", reason)
		}
	}()

	for {
		event, err := sub.Events().Receive(ctx)
		if err != nil {
			if errors.Is(err, bchan.ErrClosed) || ctx.Err() != nil {
				return nil
			}

			return err
		}
		line, err := json.Marshal(event)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
	}
}
