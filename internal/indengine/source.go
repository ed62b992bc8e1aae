package indengine

import (
	"errors"
	"fmt"
	"slices"

	"streamta/config"
	"streamta/internal/feed"
	redisstore "streamta/internal/store/redis"
)

// buildSource creates the bar feed named by FEED_KIND. When RESAMPLE is set
// the feed carries only the base TF and is resampled into the enabled TFs.
func (svc *Service) buildSource() (feed.Source, error) {
	if !svc.cfg.Resample {
		return svc.baseSource(svc.tfs)
	}
	base := svc.baseTF()
	src, err := svc.baseSource([]int{base})
	if err != nil {
		return nil, err
	}
	return &feed.ResampledSource{Inner: src, Base: base, TFs: svc.tfs}, nil
}

// baseTF is FEED_TF, or the smallest enabled TF.
func (svc *Service) baseTF() int {
	if svc.cfg.FeedTF > 0 {
		return svc.cfg.FeedTF
	}
	if len(svc.tfs) == 0 {
		return 0
	}
	return slices.Min(svc.tfs)
}

// baseSource creates the feed for bars of tfs.
func (svc *Service) baseSource(tfs []int) (feed.Source, error) {
	cfg := svc.cfg
	defaults := feed.Defaults{Exchange: cfg.FeedExchange, Token: cfg.FeedToken, TF: svc.baseTF()}

	switch cfg.FeedKind {
	case config.FeedCSV:
		return &feed.CSVSource{Path: cfg.FeedPath, Defaults: defaults, Speed: cfg.FeedSpeed}, nil
	case config.FeedParquet:
		return &feed.ParquetSource{Path: cfg.FeedPath, Defaults: defaults, Speed: cfg.FeedSpeed}, nil
	case config.FeedHistory:
		if svc.sqlReader == nil {
			return nil, errors.New("history feed needs SQLite")
		}
		return &feed.HistorySource{Reader: svc.sqlReader, TFs: tfs, FromTS: cfg.FeedFromTS, Speed: cfg.FeedSpeed}, nil
	case config.FeedRedis:
		if len(cfg.Instruments) == 0 {
			return nil, errors.New("redis feed needs INSTRUMENTS")
		}
		src, err := redisstore.NewStreamSource(redisstore.StreamSourceConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ConsumerGroup: cfg.ConsumerGroup,
			ConsumerName:  cfg.ConsumerName,
			Streams:       redisstore.StreamKeys(tfs, cfg.Instruments),
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, fmt.Errorf("unknown feed kind %q", cfg.FeedKind)
}
