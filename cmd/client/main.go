package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/infrastructure/grpc/client"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gookit/color"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	exitOK      = 0
	exitRuntime = 1
)

const usage = `Commands:
  <text>            send a message
  /join <group>     switch group
  /members          list members
  /history          reload messages
  /cart             show the cart
  /add <product>    add a product to the cart
  /search <terms>   search messages
  /invite           get an invite link
  /quit             leave`

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	addr := flag.String("addr", "localhost:5001", "gRPC address of the server")
	group := flag.String("group", "", "group to join, the server default when empty")
	user := flag.String("user", "", "user id, a guest identity when empty")
	name := flag.String("name", "", "display name")
	avatar := flag.String("avatar", "", "avatar")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.Dial(*addr)
	if err != nil {
		return exitRuntime, err
	}
	defer conn.Close()

	stream, err := client.NewStreamClient(conn).Connect(ctx, domain.Hello{
		GroupID: domain.GroupID(*group),
		UserID:  domain.UserID(*user),
		Name:    *name,
		Avatar:  *avatar,
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open stream: %w", err)
	}
	color.Info.Println(usage)

	session := &state{group: *group, user: *user, name: *name, avatar: *avatar}
	go func() {
		if err := prompt(ctx, stream, session, os.Stdin); err != nil {
			color.Error.Printf("input: %v\n", err)
		}
		// The server ends the stream once it sees the half-close.
		_ = stream.CloseSend()
	}()

	err = receive(stream)
	if err == nil || errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
		return exitOK, nil
	}
	return exitRuntime, err
}

type state struct {
	group  string
	user   string
	name   string
	avatar string
}

type sender interface {
	Send(eventName string, payload any) error
}

// prompt turns each input line into one event.
func prompt(ctx context.Context, stream sender, s *state, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, arg, _ := strings.Cut(line, " ")
		var err error
		switch command {
		case "/quit":
			return nil
		case "/join":
			s.group = arg
			err = stream.Send(event.JoinGroup, event.JoinGroupPayload{GroupID: arg, UserID: s.user, Name: s.name, Avatar: s.avatar})
		case "/members":
			err = stream.Send(event.GetMembers, event.Empty{})
		case "/history":
			err = stream.Send(event.GetMessages, event.Empty{})
		case "/cart":
			err = stream.Send(event.GetCart, event.GetCartPayload{GroupID: s.group})
		case "/add":
			err = stream.Send(event.AddToCart, event.AddToCartPayload{GroupID: s.group, ProductID: arg, AddedBy: s.user})
		case "/search":
			err = stream.Send(event.SearchMessages, event.SearchMessagesPayload{Query: arg})
		case "/invite":
			err = stream.Send(event.GenerateInvite, event.Empty{})
		default:
			sender := s.name
			if sender == "" {
				sender = "Guest"
			}
			err = stream.Send(event.SendMessage, event.SendMessagePayload{Sender: sender, Message: line})
		}
		if err != nil {
			return err
		}
	}
	return scanner.Err()
}

func receive(stream *client.Stream) error {
	for {
		env, err := stream.Recv()
		if err != nil {
			return err
		}
		render(env)
	}
}

func render(env event.Envelope) {
	switch env.Event {
	case event.MessageReceived:
		var m event.MessagePayload
		if json.Unmarshal(env.Data, &m) == nil {
			fmt.Printf("%s %s: %s\n", color.Gray.Sprint(m.Time), color.Cyan.Sprint(m.Sender), m.Message)
			return
		}
	case event.MessagesLoaded, event.SearchResults:
		color.Comment.Printf("%s %s\n", env.Event, env.Data)
		return
	case event.MembersUpdated:
		var members []event.MemberPayload
		if json.Unmarshal(env.Data, &members) == nil {
			parts := make([]string, 0, len(members))
			for _, m := range members {
				dot := color.Gray.Sprint("○")
				if m.IsOnline {
					dot = color.Green.Sprint("●")
				}
				parts = append(parts, fmt.Sprintf("%s %s %s", dot, m.Avatar, m.Name))
			}
			color.Info.Printf("members: %s\n", strings.Join(parts, ", "))
			return
		}
	case event.CartUpdated:
		var items []event.CartItemPayload
		if json.Unmarshal(env.Data, &items) == nil {
			total := 0.0
			for _, item := range items {
				total += item.Price
			}
			color.Info.Printf("cart: %d item(s), total %.2f\n", len(items), total)
			return
		}
	case event.Error:
		color.Error.Printf("error %s\n", env.Data)
		return
	}
	fmt.Printf("%s %s\n", env.Event, env.Data)
}
