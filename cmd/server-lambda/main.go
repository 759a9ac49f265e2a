package main

import (
	"context"

	"example/portfolio-api/app"
	"example/portfolio-api/app/config"
	"example/portfolio-api/app/logging"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/rs/zerolog/log"
)

var ginLambda *ginadapter.GinLambda

// init runs once per Lambda container (cold start)
func init() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	// Lambda has no process-level shutdown hook; the engine dies with the container.
	srv, _, err := app.Bootstrap(context.Background(), cfg, logging.New(cfg.Logs))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}
	router, err := app.NewRouter(srv)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize router")
	}

	// Wrap Gin router with Lambda adapter
	ginLambda = ginadapter.New(router)
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	lambda.Start(Handler)
}
