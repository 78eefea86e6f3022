package config

import "github.com/apple/pkl-go/pkl"

func init() {
	pkl.RegisterMapping("advisory_engine.AppConfig", AppConfig{})
	pkl.RegisterMapping("advisory_engine.AppConfig#Providers", Providers{})
	pkl.RegisterMapping("advisory_engine.AppConfig#HttpModel", HttpModel{})
	pkl.RegisterMapping("advisory_engine.AppConfig#Gemini", Gemini{})
	pkl.RegisterMapping("advisory_engine.AppConfig#Disease", Disease{})
	pkl.RegisterMapping("advisory_engine.AppConfig#Fusion", Fusion{})
}
