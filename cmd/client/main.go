// Command client is a line-oriented game client, mostly useful for poking at
// a server by hand.
//
//	create | join CODE | ready | unready | bot | start | leave
//	touch X Y | drag X Y | release | clear | submit | end | show | quit
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/config"
	"github.com/DoyleJ11/wordhex-backend/internal/grid"
	"github.com/DoyleJ11/wordhex-backend/internal/play"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
	"github.com/DoyleJ11/wordhex-backend/internal/wsclient"
)

func main() {
	cfg, err := config.LoadClient(".env")
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := auth.NewStaticToken(cfg.Token)
	if cfg.Token == "" {
		go func() {
			tok, err := guestSession(ctx, cfg.ServerURL, cfg.Name)
			if err != nil {
				log.Error("guest session", zap.Error(err))
				return
			}
			tokens.Set(tok)
		}()
	}

	var game *play.Client
	mgr := wsclient.New(wsclient.Options{
		URL:           cfg.ServerURL,
		Tokens:        tokens,
		BaseDelay:     cfg.ReconnectBase,
		MaxDelay:      cfg.ReconnectMax,
		MaxAttempts:   cfg.ReconnectAttempts,
		RetryInterval: cfg.SendRetry,
		Handshake:     func() []types.ClientMessage { return game.Handshake() },
		Logger:        log,
	})
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}()

	game = play.New(mgr, play.Options{Name: cfg.Name, Logger: log})
	mgr.Subscribe(game.Handle)
	mgr.OnStatus(func(s wsclient.Status) { fmt.Printf("[%s]\n", s) })
	if err := mgr.Connect(ctx); err != nil {
		log.Fatal("connect", zap.Error(err))
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := command(game, strings.Fields(line))
			if err != nil {
				fmt.Println("error:", err)
			}
			if quit {
				return
			}
		}
	}
}

func command(g *play.Client, f []string) (quit bool, err error) {
	if len(f) == 0 {
		return false, nil
	}
	switch f[0] {
	case "create":
		return false, g.Create()
	case "join":
		if len(f) < 2 {
			return false, fmt.Errorf("usage: join CODE")
		}
		return false, g.JoinLobby(f[1])
	case "ready":
		return false, g.Ready(true)
	case "unready":
		return false, g.Ready(false)
	case "bot":
		return false, g.AddBot()
	case "start":
		return false, g.Start()
	case "leave":
		return false, g.Leave()
	case "touch", "drag":
		p, err := point(f[1:])
		if err != nil {
			return false, err
		}
		if f[0] == "touch" {
			g.Touch(p)
		} else {
			g.Drag(p)
		}
	case "release":
		g.Release()
	case "clear":
		g.Clear()
	case "submit":
		return false, g.Submit()
	case "end":
		return false, g.EndTurn()
	case "show":
		show(g.View())
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", f[0])
	}
	return false, nil
}

func point(args []string) (grid.Point, error) {
	if len(args) != 2 {
		return grid.Point{}, fmt.Errorf("want X Y")
	}
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return grid.Point{}, err
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return grid.Point{}, err
	}
	return grid.Point{X: x, Y: y}, nil
}

func show(v play.View) {
	fmt.Printf("lobby %s  round %d  turn %s", v.Code, v.Round, v.Turn)
	if v.MyTurn {
		fmt.Print(" (you)")
	}
	fmt.Println()
	for _, row := range v.Board {
		fmt.Println(" ", strings.Join(strings.Split(string(row), ""), " "))
	}
	if len(v.Selection) > 0 {
		fmt.Printf("selected %s (%d)", v.Preview.Word, v.Preview.Score)
		if v.Preview.Checked && !v.Preview.Valid {
			fmt.Print(" not a word")
		}
		fmt.Println()
	}
	for id, score := range v.Scores {
		fmt.Printf("  %s: %d\n", id, score)
	}
	if v.Ended {
		fmt.Printf("match over (%s), winners %v\n", v.Reason, v.Winners)
	}
	if v.LastError != nil {
		fmt.Printf("last error: %s %s\n", v.LastError.Code, v.LastError.Message)
	}
}

// guestSession asks the server for a guest token over plain HTTP.
func guestSession(ctx context.Context, wsURL, name string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/session"
	u.RawQuery = ""

	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("session: %s", res.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}
