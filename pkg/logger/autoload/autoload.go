// Package autoload initializes the global logger from the environment as an
// import side effect:
//
//	import _ "github.com/biancassilva/pharmacy-sales-chatbot/pkg/logger/autoload"
package autoload

import (
	configx "github.com/biancassilva/pharmacy-sales-chatbot/pkg/config"
	logx "github.com/biancassilva/pharmacy-sales-chatbot/pkg/logger"
)

func init() {
	cfg, err := configx.Load[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
