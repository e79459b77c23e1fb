package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"casalista/auth"
	"casalista/config"
	"casalista/guard"
	"casalista/httputil"
	"casalista/logging"
	"casalista/models"
	"casalista/scheduler"
	"casalista/services"
	"casalista/session"
	"casalista/storage"
	"casalista/uploader"
)

var (
	loginEmail = flag.String("login", "", "Sign in as this email on startup (password from CASALISTA_PASSWORD)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting casalista...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := httputil.NewClients()

	docs, cleanup, err := newDocStore(ctx, cfg, clients)
	if err != nil {
		log.Fatalf("Failed to connect document store: %v", err)
	}
	defer cleanup()

	journal, err := storage.NewJournalStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer journal.Close()
	log.Printf("Journal database: %s", cfg.DBPath)

	host, err := newImageHost(ctx, cfg, clients)
	if err != nil {
		log.Fatalf("Failed to set up image host: %v", err)
	}

	coordinator := uploader.NewCoordinator(host).WithJournal(journal)

	provider := auth.NewGoTrueClient(&cfg.Supabase, clients.API)

	// The session store is constructed here and passed by reference; it is
	// never package-level state.
	store := session.NewStore(session.NewResolver(docs))
	detach := store.Attach(provider)
	defer detach()

	unsubscribe := store.Subscribe(func(snap session.Snapshot) {
		if snap.AuthLoading {
			return
		}
		uid := ""
		if snap.Identity != nil {
			uid = snap.Identity.ID
		}
		log.Printf("Session: identity=%q profile=%s", uid, snap.Profile.Status)
		if snap.Identity != nil {
			journal.LogAuthEvent(models.AuthEventSignIn, snap.Identity.ID, snap.Identity.Email)
		} else {
			journal.LogAuthEvent(models.AuthEventSignOut, "", "")
		}
	})
	defer unsubscribe()

	rules, err := guard.LoadRules(cfg.RoutesDir)
	if err != nil {
		log.Fatalf("Failed to load route rules: %v", err)
	}
	log.Printf("Loaded %d route rules", len(rules))

	listings := services.NewListingService(docs, coordinator)
	catalog := services.NewCatalogService(docs, listings)

	if agents, err := catalog.Agents(ctx); err != nil {
		log.Printf("Warning: could not list agents: %v", err)
	} else {
		log.Printf("Catalog: %d registered agents", len(agents))
	}

	if *loginEmail != "" {
		if _, err := provider.SignIn(ctx, *loginEmail, os.Getenv("CASALISTA_PASSWORD")); err != nil {
			log.Fatalf("Sign-in failed: %v", err)
		}
		log.Printf("Signed in as %s", *loginEmail)
	} else {
		// No stored session: the store settles into the signed-out state.
		store.OnIdentityChange(nil)
	}

	sched := scheduler.New(&cfg.Scheduler, provider, docs, journal)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// newDocStore prefers a direct Postgres connection and falls back to the
// PostgREST API when only the anon key is configured.
func newDocStore(ctx context.Context, cfg *config.Config, clients *httputil.Clients) (storage.DocStore, func(), error) {
	if cfg.Supabase.DBURL != "" {
		store, err := storage.NewPostgresStore(ctx, cfg.Supabase.DBURL)
		if err != nil {
			return nil, nil, err
		}
		log.Println("Document store: Postgres (atomic batches)")
		return store, store.Close, nil
	}

	log.Println("Document store: Supabase REST (best-effort batches)")
	return storage.NewSupabaseStore(&cfg.Supabase, clients.API), func() {}, nil
}

func newImageHost(ctx context.Context, cfg *config.Config, clients *httputil.Clients) (uploader.ImageHost, error) {
	if cfg.ImageHost.Provider == "s3" {
		log.Printf("Image host: S3 bucket %s", cfg.ImageHost.S3.Bucket)
		return uploader.NewS3Host(ctx, cfg.ImageHost.S3)
	}
	log.Printf("Image host: Cloudinary cloud %s", cfg.ImageHost.CloudName)
	return uploader.NewCloudinaryHost(&cfg.ImageHost, clients.Upload), nil
}
