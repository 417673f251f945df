package main

import "duat/internal/app"

func main() {
	app.Main()
}
