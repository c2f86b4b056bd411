// Command ws-probe exercises a running relay end to end: it connects as a
// user, joins a page, performs a small edit sequence, and prints the
// resulting tree. Useful for smoke-testing a deployment and for driving a
// second cursor while developing the editor UI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"pagesync/client"
	"pagesync/domain/tree"
	"pagesync/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/ws", "relay websocket endpoint")
		project = flag.String("project", "probe-project", "project id")
		page    = flag.String("page", "probe-page", "page id")
		user    = flag.String("user", "probe", "user id, doubles as the dev token")
		watch   = flag.Bool("watch", false, "stay connected and print every broadcast")
	)
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	c, err := client.New(client.Options{
		URL:       *url,
		ProjectID: *project,
		PageID:    *page,
		UserID:    *user,
		UserName:  *user,
		GetToken:  func(context.Context) (string, error) { return *user, nil },
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer c.Destroy()

	c.OnStateChange(func(s client.State) {
		logger.Info("State changed", zap.Stringer("state", s))
	})
	c.OnError(func(err error) {
		logger.Warn("Protocol error", zap.Error(err))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	if *watch {
		c.OnBroadcast(func(env protocol.Envelope) {
			fmt.Printf("<- %s from %s\n", env.Type, env.UserID)
		})
		fmt.Println("watching; ctrl-c to exit")
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt)
		<-stop
		return
	}

	if err := runEditSequence(ctx, c); err != nil {
		log.Fatalf("edit sequence failed: %v", err)
	}

	printTree(c.Tree())

	if result := c.Validate(); !result.OK {
		log.Fatalf("tree invariants violated: %v", result.Errors)
	}
	fmt.Println("ok")
}

// runEditSequence builds a tiny page: a section holding a text element,
// edits the text, reorders it, and reports presence along the way.
func runEditSequence(ctx context.Context, c *client.Client) error {
	section, err := c.CreateElement(ctx, protocol.CreateElementPayload{Kind: tree.KindSection})
	if err != nil {
		return fmt.Errorf("create section: %w", err)
	}

	text, err := c.CreateElement(ctx, protocol.CreateElementPayload{
		Kind:     tree.KindText,
		ParentID: section.ID,
		Content:  "hello from ws-probe",
	})
	if err != nil {
		return fmt.Errorf("create text: %w", err)
	}

	if err := c.SendPresence(100, 100, text.ID); err != nil {
		return fmt.Errorf("send presence: %w", err)
	}

	content := "edited by ws-probe"
	if err := c.UpdateElement(ctx, protocol.UpdateElementPayload{ID: text.ID, Content: &content}); err != nil {
		return fmt.Errorf("update text: %w", err)
	}

	if err := c.MoveElement(ctx, protocol.MoveElementPayload{ID: text.ID, ParentID: "", Order: 0}); err != nil {
		return fmt.Errorf("move text to root: %w", err)
	}
	return nil
}

func printTree(nodes []tree.Node) {
	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		log.Fatalf("failed to render tree: %v", err)
	}
	fmt.Println(string(data))
}
