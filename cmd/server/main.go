package main

import "tutorbase/internal/app"

func main() {
	app.Run()
}
