package command

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/khm-preview/internal/cli/connection"
	"github.com/yndnr/khm-preview/internal/cli/output"
	"github.com/yndnr/khm-preview/internal/server/httpserver/handler"
)

// LinkCommand returns the link subcommand group.
func LinkCommand() *cli.Command {
	postFlag := &cli.Int64Flag{
		Name:     "post",
		Aliases:  []string{"p"},
		Usage:    "Post ID",
		Required: true,
	}
	hoursFlag := &cli.IntFlag{
		Name:  "hours",
		Usage: "Lifetime in hours (0 = server default)",
	}

	return &cli.Command{
		Name:  "link",
		Usage: "Manage preview links",
		Subcommands: []*cli.Command{
			{
				Name:   "create",
				Usage:  "Create a preview link for a post",
				Flags:  []cli.Flag{postFlag, hoursFlag},
				Action: linkCreate,
			},
			{
				Name:      "get",
				Usage:     "Show a preview link",
				ArgsUsage: "LINK_ID",
				Action:    linkGet,
			},
			{
				Name:   "active",
				Usage:  "Show the active link of a post with its recent views",
				Flags:  []cli.Flag{postFlag},
				Action: linkActive,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List every link of a post, newest first",
				Flags:   []cli.Flag{postFlag},
				Action:  linkList,
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a preview link",
				ArgsUsage: "LINK_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: linkRevoke,
			},
			{
				Name:      "extend",
				Usage:     "Extend a preview link",
				ArgsUsage: "LINK_ID",
				Flags:     []cli.Flag{hoursFlag},
				Action:    linkExtend,
			},
		},
	}
}

// linkView is a single link in table output.
type linkView handler.LinkResponse

func (l linkView) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("id", l.ID)
	t.AddRow("post_id", output.FormatValue(l.PostID))
	t.AddRow("status", string(l.Status))
	t.AddRow("created_by", output.FormatValue(l.CreatedBy))
	t.AddRow("created_at", output.FormatValue(l.CreatedAt))
	t.AddRow("expires_at", output.FormatValue(l.ExpiresAt))
	t.AddRow("revoked_at", output.FormatValue(l.RevokedAt))
	return t
}

// linkListView is a list of links in table output.
type linkListView handler.ListLinksResponse

func (l linkListView) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"LINK ID", "STATUS", "CREATED", "EXPIRES"}}
	if wide {
		t.Headers = append(t.Headers, "CREATED BY", "REVOKED")
	}
	for _, item := range l.Items {
		row := []string{
			item.ID,
			string(item.Status),
			output.FormatValue(item.CreatedAt),
			output.FormatValue(item.ExpiresAt),
		}
		if wide {
			row = append(row, output.FormatValue(item.CreatedBy), output.FormatValue(item.RevokedAt))
		}
		t.AddRow(row...)
	}
	return t
}

// postLinkView is the active link with its recent hits.
type postLinkView handler.PostLinkResponse

func (p postLinkView) Table(wide bool) *output.Table {
	t := linkView(p.LinkResponse).Table(wide)
	t.AddRow("total_hits", strconv.Itoa(p.TotalHits))
	for i, hit := range p.Hits {
		t.AddRow(fmt.Sprintf("hit[%d]", i), fmt.Sprintf("%s  %s  %s",
			output.FormatValue(hit.ViewedAt), output.FormatValue(hit.IP), output.FormatValue(hit.UserAgent)))
	}
	return t
}

func linkCreate(c *cli.Context) error {
	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Post(s.ctx, "/links", handler.CreateLinkRequest{
		PostID: c.Int64("post"),
		Hours:  c.Int("hours"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.CreateLinkResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if err := render(c, s.flags, result); err != nil {
		return err
	}
	if s.flags.Output == output.FormatTable {
		fmt.Fprintln(c.App.ErrWriter, "\nSave this token - it cannot be retrieved later.")
	}
	return nil
}

func linkGet(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("link ID required")
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Get(s.ctx, "/links/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.LinkResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, s.flags, linkView(result))
}

func linkActive(c *cli.Context) error {
	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Get(s.ctx, fmt.Sprintf("/posts/%d/link", c.Int64("post")))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.PostLinkResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, s.flags, postLinkView(result))
}

func linkList(c *cli.Context) error {
	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Get(s.ctx, fmt.Sprintf("/posts/%d/links", c.Int64("post")))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.ListLinksResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if err := render(c, s.flags, linkListView(result)); err != nil {
		return err
	}
	if s.flags.Output == output.FormatTable {
		fmt.Fprintf(c.App.Writer, "\nTotal: %d links\n", result.Total)
	}
	return nil
}

func linkRevoke(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("link ID required")
	}
	if !c.Bool("force") && !confirm(c, fmt.Sprintf("Revoke preview link %s?", id)) {
		fmt.Fprintln(c.App.ErrWriter, "Cancelled.")
		return nil
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Delete(s.ctx, "/links/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.LinkResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, s.flags, linkView(result))
}

func linkExtend(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("link ID required")
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.cancel()

	resp, err := s.client.Post(s.ctx, "/links/"+url.PathEscape(id)+"/extend", handler.ExtendLinkRequest{
		Hours: c.Int("hours"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result handler.LinkResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	return render(c, s.flags, linkView(result))
}
