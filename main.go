package main

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/app"
)

func main() {
	a := app.New()
	<-a.Start()

	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer cancel()
	a.Stop(ctx)
}
