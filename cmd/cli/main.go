package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/phambaophuc/image-seo/internal/auth"
	"github.com/phambaophuc/image-seo/internal/client"
	"github.com/phambaophuc/image-seo/internal/models"
)

// CLI flags
var (
	serverFlag      string
	tokenFlag       string
	titleLenFlag    int
	descLenFlag     int
	keywordsFlag    int
	retryFailedFlag bool
	timeoutFlag     time.Duration

	tokenUserFlag   string
	tokenSecretFlag string
	tokenTTLFlag    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "image-seo",
	Short: "Batch SEO metadata generation for stock images",
	Long: `image-seo uploads a batch of images, generates SEO metadata for each one
and stores the results in object storage. Each successfully processed image
costs one token from your balance.

Examples:
  image-seo upload photos/*.jpg --token $TOKEN
  image-seo upload a.png b.png --title-length 60 --keyword-count 30 --retry-failed
  image-seo balance --token $TOKEN`,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <image>...",
	Short: "Upload images and generate SEO metadata",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the current token balance",
	RunE:  runBalance,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed access token (requires the server's signing secret)",
	RunE:  runToken,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "http://localhost:8080", "Server base URL")
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", os.Getenv("IMAGE_SEO_TOKEN"), "Access token (defaults to IMAGE_SEO_TOKEN)")

	uploadCmd.Flags().IntVar(&titleLenFlag, "title-length", 80, "Maximum title length in characters")
	uploadCmd.Flags().IntVar(&descLenFlag, "description-length", 200, "Maximum description length in characters")
	uploadCmd.Flags().IntVar(&keywordsFlag, "keyword-count", 25, "Maximum number of keywords per image")
	uploadCmd.Flags().BoolVar(&retryFailedFlag, "retry-failed", false, "Resubmit failed images once under the same batch")
	uploadCmd.Flags().DurationVar(&timeoutFlag, "timeout", time.Hour, "Overall timeout for the batch")

	tokenCmd.Flags().StringVar(&tokenUserFlag, "user", "", "User id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenSecretFlag, "secret", os.Getenv("AUTH_SECRET"), "Signing secret (defaults to AUTH_SECRET)")
	tokenCmd.Flags().DurationVar(&tokenTTLFlag, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(uploadCmd, balanceCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	if tokenFlag == "" {
		return errors.New("no access token: pass --token or set IMAGE_SEO_TOKEN")
	}

	files, err := loadFiles(args)
	if err != nil {
		return err
	}

	constraints := models.GenerationConstraints{
		TitleLength:       titleLenFlag,
		DescriptionLength: descLenFlag,
		KeywordCount:      keywordsFlag,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()

	session := client.NewSession(serverFlag, tokenFlag,
		client.WithProgress(printProgress))

	balance, err := session.FetchBalance(ctx)
	if err != nil {
		if errors.Is(err, client.ErrAuthentication) {
			return errors.New("authentication rejected: obtain a fresh token and try again")
		}
		return err
	}
	fmt.Printf("Token balance: %d, uploading %d image(s)\n", balance, len(files))

	result, err := session.Start(ctx, files, constraints, balance)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrInsufficientTokens):
			return fmt.Errorf("not enough tokens: have %d, need %d", balance, len(files))
		case errors.Is(err, client.ErrAuthentication):
			return errors.New("authentication rejected: obtain a fresh token and try again")
		case errors.Is(err, client.ErrCancelled):
			return errors.New("upload cancelled")
		}
		return err
	}

	if retryFailedFlag && len(result.FailedImages) > 0 {
		fmt.Printf("\nRetrying %d failed image(s)...\n", len(result.FailedImages))
		if result, err = session.Regenerate(ctx); err != nil {
			return fmt.Errorf("regeneration failed: %w", err)
		}
	}

	printResult(result, session.Classification())
	if len(result.SuccessfulImages) == 0 {
		return errors.New("no images were processed successfully")
	}
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	if tokenFlag == "" {
		return errors.New("no access token: pass --token or set IMAGE_SEO_TOKEN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session := client.NewSession(serverFlag, tokenFlag)
	balance, err := session.FetchBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Token balance: %d\n", balance)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenUserFlag == "" {
		return errors.New("--user is required")
	}
	if tokenSecretFlag == "" {
		return errors.New("no signing secret: pass --secret or set AUTH_SECRET")
	}

	token, err := auth.GenerateToken(tokenUserFlag, []byte(tokenSecretFlag), tokenTTLFlag)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// loadFiles reads every named image into memory and infers a content type
// from the file extension. Full contents are needed up front for exact
// progress reporting.
func loadFiles(paths []string) ([]client.File, error) {
	files := make([]client.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", p, err)
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		files = append(files, client.File{
			Name:        filepath.Base(p),
			Data:        data,
			ContentType: contentType,
		})
	}
	return files, nil
}

func printProgress(percent int, state client.State) {
	if state == client.StateServerProcessing {
		fmt.Printf("\rUpload complete, waiting for the server...        \n")
		return
	}
	fmt.Printf("\rUploading... %3d%%", percent)
}

func printResult(result *models.BatchResult, classification string) {
	fmt.Println()
	fmt.Println("============================================")
	fmt.Printf("Batch %s: %s\n", result.BatchID, classification)
	fmt.Println("============================================")

	for _, img := range result.SuccessfulImages {
		fmt.Printf("✅ %s\n", img.Filename)
		fmt.Printf("   Title:    %s\n", img.Metadata.Title)
		fmt.Printf("   Keywords: %s\n", strings.Join(img.Metadata.Keywords, ", "))
		fmt.Printf("   URL:      %s\n", img.URL)
	}
	for _, img := range result.FailedImages {
		fmt.Printf("❌ %s: %s\n", img.Filename, img.Error)
	}

	fmt.Println("--------------------------------------------")
	fmt.Printf("Processed: %d  Failed: %d  Tokens left: %d\n",
		len(result.SuccessfulImages), len(result.FailedImages), result.RemainingTokens)
}
