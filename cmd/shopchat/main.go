// Binary shopchat is a terminal chat front end for a shopagent server.
//
// Usage:
//
//	shopchat [-config client.yaml] [-session id] [-v]
//
// Settings come from the config file and AGENT_* environment variables
// (AGENT_BASE_URL, AGENT_APP_NAME, AGENT_AUTH_TOKEN, ...). Commands:
//
//	/cart      refresh and show the cart
//	/submit    start submitting the order
//	/confirm   confirm a pending submission
//	/cancel    cancel a pending submission
//	/new       start a new order after one was placed
//	/templates list quick actions
//	/quit      exit
//
// Any other /name expands the matching quick action template.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bitop-dev/shopagent/pkg/client"
	"github.com/bitop-dev/shopagent/pkg/prompts"
)

func main() {
	configPath := flag.String("config", "", "path to client config file")
	sessionID := flag.String("session", "", "session ID to use (default: new)")
	verbose := flag.Bool("v", false, "log requests to stderr")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fatalf("load .env: %v", err)
	}
	cfg, err := client.LoadConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}

	log := logrus.New()
	log.Out = os.Stderr
	log.Level = logrus.WarnLevel
	if *verbose {
		log.Level = logrus.DebugLevel
	}

	cwd, _ := os.Getwd()
	templates := prompts.LoadTemplates(cwd)

	cv := client.NewConversation(client.New(*cfg, client.WithLogger(log)), *sessionID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("[shopchat] %s app=%s session=%s\n", cfg.BaseURL, cfg.AppName, cv.SessionID())
	fmt.Println("[shopchat] commands: /cart /submit /confirm /cancel /new /templates /quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return

		case "/cart":
			if _, err := cv.Send(ctx, client.FetchCart); err != nil {
				fmt.Println("[error]", err)
			}
			printCart(cv.Cart())
			continue

		case "/submit":
			switch err := cv.RequestSubmit(); {
			case errors.Is(err, client.ErrEmptyCart):
				fmt.Println("[warning] Your cart is empty.")
			case err != nil:
				fmt.Println("[warning]", err)
			default:
				printCart(cv.Cart())
				fmt.Println("[order] Please confirm your order submission: /confirm or /cancel")
			}
			continue

		case "/confirm":
			reply, err := cv.Confirm(ctx)
			if errors.Is(err, client.ErrNotConfirming) {
				fmt.Println("[warning] nothing to confirm, use /submit first")
				continue
			}
			printReply(reply)
			if cv.OrderConfirmed() {
				printOrder(cv.OrderDetails())
			}
			continue

		case "/cancel":
			cv.Cancel()
			fmt.Println("[order] submission cancelled")
			continue

		case "/new":
			cv.StartNewOrder()
			fmt.Println("[order] started a new order")
			continue

		case "/templates":
			for _, t := range templates {
				fmt.Printf("  /%-12s %s (%s)\n", t.Name, t.Description, t.Source)
			}
			continue
		}

		prompt := line
		if expanded, ok := prompts.Expand(line, templates); ok {
			prompt = expanded
			fmt.Printf("[template] %s\n", prompt)
		} else if strings.HasPrefix(line, "/") {
			fmt.Printf("[unknown command %s]\n", strings.Fields(line)[0])
			continue
		}

		reply, _ := cv.Send(ctx, prompt)
		printReply(reply)
		if client.IsCartRelated(prompt) {
			printCart(cv.Cart())
		}
		if cv.OrderConfirmed() && cv.State() == client.OrderSubmitted {
			printOrder(cv.OrderDetails())
		}
	}
}

func printReply(text string) {
	if text != "" {
		fmt.Printf("\n%s\n\n", text)
	}
}

func printCart(c client.Cart) {
	if c.IsEmpty() {
		fmt.Println("[cart] empty")
		return
	}
	fmt.Println("[cart]")
	for _, it := range c.Items {
		fmt.Printf("  %-12s %-34s x%-3d $%8.2f\n", it.ProductID, it.Name, it.Quantity, it.Price*float64(it.Quantity))
	}
	fmt.Printf("  %-52s $%8.2f\n", "Subtotal", c.Subtotal)
}

func printOrder(details any) {
	fmt.Println("[order] Order successfully submitted!")
	d, ok := details.(map[string]any)
	if !ok {
		if details != nil {
			fmt.Printf("  %v\n", details)
		}
		return
	}
	for _, k := range []string{"order_id", "order_date", "status"} {
		if v, ok := d[k]; ok {
			fmt.Printf("  %-12s %v\n", k+":", v)
		}
	}
	if v, ok := d["order_total"].(float64); ok {
		fmt.Printf("  %-12s $%.2f\n", "total:", v)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
