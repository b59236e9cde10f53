package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cuttledoc/speechd/pkg/client"
)

var (
	socketPath = flag.String("socket", "/tmp/speechd.sock", "Unix socket path")
	command    = flag.String("cmd", "", "Command to send (e.g., 'STATUS', 'TRANSCRIBE:/tmp/clip.wav')")
)

func main() {
	flag.Parse()

	if *socketPath == "" {
		fmt.Fprintf(os.Stderr, "Socket path is required\n")
		os.Exit(1)
	}

	// If no command specified, show interactive help
	if *command == "" {
		if len(flag.Args()) > 0 {
			*command = strings.Join(flag.Args(), " ")
		} else {
			showHelp()
			return
		}
	}

	// Create socket client
	client := client.NewSocketClient(*socketPath)

	// Send command
	response, err := client.SendCommand(*command)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Print response
	fmt.Printf("%s\n", response.String())

	if !response.Success {
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Println("speechctl - Speech Daemon Control Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command>\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -socket <path>    Unix socket path (default: /tmp/speechd.sock)")
	fmt.Println("  -cmd <command>    Command to send")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  STATUS                    Get daemon status")
	fmt.Println("  BACKENDS                  List speech backends")
	fmt.Println("  LOCALES                   List locales of the active backend")
	fmt.Println("  LOCALES:<backend>         List locales of a backend")
	fmt.Println("  AUTHORIZE                 Request speech authorization")
	fmt.Println("  AUTHORIZE:<backend>       Request authorization from a backend")
	fmt.Println("  TRANSCRIBE:<path>         Queue a WAV file for transcription")
	fmt.Println("  HISTORY                   Get recent transcripts")
	fmt.Println("  HISTORY:10                Get last 10 transcripts")
	fmt.Println("  SEARCH:<term>             Search stored transcripts")
	fmt.Println("  SWITCH:<backend>          Switch the active backend")
	fmt.Println("  PING                      Test connection")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s STATUS\n", os.Args[0])
	fmt.Printf("  %s 'TRANSCRIBE:/tmp/meeting.wav'\n", os.Args[0])
	fmt.Printf("  %s HISTORY:5\n", os.Args[0])
	fmt.Printf("  echo 'STATUS' | nc -U /tmp/speechd.sock\n")
}
