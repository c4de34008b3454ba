package main

import "github.com/adanyl0v/go-task-manager/internal/app"

func main() {
	app.Run()
}
