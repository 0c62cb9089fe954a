package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/courseimages/internal/adapters/in/cli/ui/components"
	"github.com/bnema/courseimages/internal/adapters/in/cli/ui/styles"
	"github.com/bnema/courseimages/internal/boundaries/in"
	"github.com/bnema/courseimages/internal/domain"
)

type imagesDeleteOptions struct {
	Yes bool
}

var imagesListColumns = []components.Column{
	{Title: "IMAGE", Width: 40},
	{Title: "DISPLAY NAME", Width: 24},
	{Title: "REPO", Width: 36},
	{Title: "REF", Width: 12},
	{Title: "IMAGE_ID", Width: 14},
	{Title: "FLAGS", Width: 10},
}

// confirmDelete is swapped out in tests.
var confirmDelete = components.Ask

func newImagesCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List, inspect, promote and delete course images",
	}

	cmd.AddCommand(newImagesListCmd(withSession))
	cmd.AddCommand(newImagesTagsCmd(withSession))
	cmd.AddCommand(newImagesInspectCmd(withSession))
	cmd.AddCommand(newImagesPromoteCmd(withSession))
	cmd.AddCommand(newImagesSetDefaultCmd(withSession))
	cmd.AddCommand(newImagesDeleteCmd(withSession))

	return cmd
}

func newImagesListCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List course images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				return runImagesList(s.ctx, s.images, cmd.OutOrStdout(), asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")

	return cmd
}

func newImagesTagsCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List every repository:tag pair in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, func(s *session) error {
				return runImagesTags(s.ctx, s.images, cmd.OutOrStdout())
			})
		},
	}
}

func newImagesInspectCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect NAME[:TAG]",
		Short: "Show the manifest and config of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return runImagesInspect(s.ctx, s.images, s.host, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func newImagesPromoteCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	return &cobra.Command{
		Use:   "promote SRC DST",
		Short: "Make an image available under another name and tag",
		Long: `Promote mounts every blob of SRC into the repository of DST and
then pushes the same manifest under DST. No layer is copied.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return runImagesPromote(s.ctx, s.images, args[0], args[1], cmd.OutOrStdout())
			})
		},
	}
}

func newImagesSetDefaultCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	return &cobra.Command{
		Use:   "set-default SRC",
		Short: "Promote an image to the default course image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return runImagesSetDefault(s.ctx, s.images, args[0], cmd.OutOrStdout())
			})
		},
	}
}

func newImagesDeleteCmd(withSession func(*cobra.Command, func(*session) error) error) *cobra.Command {
	var opts imagesDeleteOptions

	cmd := &cobra.Command{
		Use:   "delete NAME[:TAG]",
		Short: "Delete an image and the blobs no other image uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(s *session) error {
				return runImagesDelete(s.ctx, s.images, args[0], opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "Delete without asking for confirmation")

	return cmd
}

func runImagesList(ctx context.Context, svc in.ImageService, out io.Writer, asJSON bool) error {
	records, err := svc.ListImages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}

	if asJSON {
		if records == nil {
			records = []domain.ImageRecord{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	p := &printer{w: out}
	if len(records) == 0 {
		p.line(styles.Faint.Render("No course images found"))
		p.line(styles.Status(styles.Info, "Total images: 0"))
		return p.err
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{r.ImageName, r.DisplayName, r.Repo, r.Ref, r.ShortImageID, imageFlags(r)})
	}

	p.line(styles.Title.Render("Course images"))
	p.line(components.Table{Columns: imagesListColumns, Rows: rows, Plain: true}.String())
	p.linef("\nTotal images: %d", len(records))
	return p.err
}

func runImagesTags(ctx context.Context, svc in.ImageService, out io.Writer) error {
	tags, err := svc.ListRepositoryTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to list repository tags: %w", err)
	}

	p := &printer{w: out}
	for _, rt := range tags {
		p.line(rt.String())
	}
	if len(tags) == 0 {
		p.line(styles.Faint.Render("No tags found"))
	}
	return p.err
}

func imageFlags(r domain.ImageRecord) string {
	var flags []string
	if r.IsDefault {
		flags = append(flags, "default")
	}
	if r.IsInitial {
		flags = append(flags, "initial")
	}
	return strings.Join(flags, ",")
}

func runImagesInspect(ctx context.Context, svc in.ImageService, host, ref string, out io.Writer) error {
	coord, err := domain.ParseCoordinate(ref)
	if err != nil {
		return err
	}

	img, err := svc.Inspect(ctx, coord.Name, coord.Tag)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", coord, err)
	}

	p := &printer{w: out}
	p.line(styles.Title.Render(coord.String()))
	p.line(styles.Field("Pull:", domain.FullImageName(host, coord.String())))
	p.line(styles.Field("Manifest:", img.Manifest.Digest))
	p.line(styles.Field("Media type:", img.Manifest.MediaType))
	p.line(styles.Field("Image ID:", img.Config.Digest))
	p.line(styles.Field("Layers:", strconv.Itoa(len(img.Manifest.Layers))))
	if cmd := img.Config.Command(); len(cmd) > 0 {
		p.line(styles.Field("Command:", strings.Join(cmd, " ")))
	}

	if len(img.Config.Labels) == 0 {
		p.line(styles.Faint.Render("No labels"))
		return p.err
	}
	p.line(styles.Label.Render("Labels:"))
	keys := make([]string, 0, len(img.Config.Labels))
	for k := range img.Config.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.line(styles.Bullet(k + "=" + img.Config.Labels[k]))
	}
	return p.err
}

func runImagesPromote(ctx context.Context, svc in.ImageService, src, dst string, out io.Writer) error {
	source, err := domain.ParseCoordinate(src)
	if err != nil {
		return err
	}
	target, err := domain.ParseCoordinate(dst)
	if err != nil {
		return err
	}

	dgst, err := svc.Promote(ctx, target.Name, target.Tag, source.Name, source.Tag)
	if err != nil {
		return fmt.Errorf("failed to promote %s to %s: %w", source, target, err)
	}

	p := &printer{w: out}
	p.line(styles.Status(styles.Success, fmt.Sprintf("Promoted %s to %s (%s)", source, target, dgst)))
	return p.err
}

func runImagesSetDefault(ctx context.Context, svc in.ImageService, src string, out io.Writer) error {
	source, err := domain.ParseCoordinate(src)
	if err != nil {
		return err
	}

	dgst, err := svc.SetDefaultCourseImage(ctx, source.Name, source.Tag)
	if err != nil {
		return fmt.Errorf("failed to set default course image: %w", err)
	}

	p := &printer{w: out}
	p.line(styles.Status(styles.Success, fmt.Sprintf("%s is now the default course image (%s)", source, dgst)))
	return p.err
}

func runImagesDelete(ctx context.Context, svc in.ImageService, ref string, opts imagesDeleteOptions, out io.Writer) error {
	coord, err := domain.ParseCoordinate(ref)
	if err != nil {
		return err
	}

	p := &printer{w: out}
	if !opts.Yes {
		ok, err := confirmDelete(fmt.Sprintf("Delete %s?", coord), "Blobs still used by other images are kept.")
		if err != nil {
			return err
		}
		if !ok {
			p.line(styles.Status(styles.Warning, "Aborted, nothing deleted"))
			return p.err
		}
	}

	report, err := svc.DeleteImage(ctx, coord.Name, coord.Tag)
	if err != nil {
		if report.ManifestDigest != "" {
			p.line(styles.Status(styles.Warning, fmt.Sprintf("Manifest %s deleted, %d blobs removed before the failure",
				report.ManifestDigest, len(report.BlobsDeleted))))
		}
		return fmt.Errorf("failed to delete %s: %w", coord, err)
	}

	p.line(styles.Status(styles.Success, fmt.Sprintf("Deleted %s (%s)", coord, report.ManifestDigest)))
	rows := make([][]string, 0, len(report.BlobsDeleted)+len(report.BlobsKept))
	for _, d := range report.BlobsDeleted {
		rows = append(rows, []string{d, "deleted"})
	}
	for _, d := range report.BlobsKept {
		rows = append(rows, []string{d, "kept (shared)"})
	}
	if len(rows) > 0 {
		p.line(components.DigestTable(rows))
	}
	p.linef("Blobs deleted: %d, kept: %d", len(report.BlobsDeleted), len(report.BlobsKept))
	return p.err
}
