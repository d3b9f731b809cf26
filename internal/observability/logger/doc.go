// Package logger provee el logger estructurado (zap) del proyecto.
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	log := logger.From(ctx).With(logger.Layer("engine"), logger.Op("token.issue"))
//	log.Info("token issued", logger.ClientID(clientID))
//
// En dev la salida es consola con colores; en prod es JSON.
package logger
