// Command gameclient is an interactive menu-driven client: it drives a
// single node's client-facing RPC Mesh endpoints over HTTP and subscribes
// directly to the Coordination Store's pub/sub channels for asynchronous
// notifications, since subscription is a client-side concern (the node
// only ever publishes).
//
// Menu rendering and human input are out of scope for the coordination
// core this repo implements; this command exists only so
// internal/clientconfig has a real caller and the RPC Mesh's client
// contract has an end-to-end exerciser.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnohosten/cardmesh/internal/clientconfig"
	"github.com/mnohosten/cardmesh/internal/eventbus"
	"github.com/mnohosten/cardmesh/internal/model"
)

type session struct {
	cfg        *clientconfig.Config
	httpClient *http.Client
	rdb        *redis.Client

	playerID   string
	playerName string
}

func main() {
	cfg, err := clientconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERRO] configuração inválida: %v\n", err)
		os.Exit(1)
	}

	s := &session{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		rdb:        redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()}),
	}
	defer s.rdb.Close()

	reader := bufio.NewScanner(os.Stdin)
	s.menuLoop(reader)
}

func (s *session) menuLoop(reader *bufio.Scanner) {
	if s.playerID == "" {
		fmt.Printf("Digite seu nome para conectar ao %s: ", s.cfg.BaseURL())
		if !reader.Scan() {
			return
		}
		s.join(strings.TrimSpace(reader.Text()))
		if s.playerID == "" {
			return
		}
	}

	for {
		fmt.Println("\n" + strings.Repeat("=", 40))
		fmt.Printf("MENU PRINCIPAL - %s @ %s\n", s.playerName, s.cfg.BaseURL())
		fmt.Println(strings.Repeat("=", 40))
		fmt.Println("1. Abrir Pacotes (2PC)")
		fmt.Println("2. Ver Inventário e Ping")
		fmt.Println("3. Trocar Cartas (2PC)")
		fmt.Println("4. Mudar Servidor")
		fmt.Println("5. Sair")
		fmt.Println(strings.Repeat("=", 40))
		fmt.Print("Escolha uma opção: ")

		if !reader.Scan() {
			return
		}
		switch strings.TrimSpace(reader.Text()) {
		case "1":
			s.openPack()
		case "2":
			s.viewInventoryAndPing()
		case "3":
			s.tradeCards(reader)
		case "4":
			s.changeServer(reader)
		case "5":
			fmt.Println("Saindo...")
			return
		default:
			fmt.Println("[AVISO] Opção inválida. Tente novamente.")
		}
	}
}

type apiEnvelope struct {
	OK      bool            `json:"ok"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (s *session) post(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodPost, s.cfg.BaseURL()+path, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *session) do(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("falha de comunicação com o servidor: %w", err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("resposta inválida do servidor: %w", err)
	}
	if !env.OK {
		return fmt.Errorf("%s: %s", env.Error, env.Message)
	}
	if out != nil && len(env.Result) > 0 {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

func (s *session) join(nome string) {
	var result struct {
		Player    model.Player    `json:"player"`
		Inventory model.Inventory `json:"inventory"`
	}
	path := "/jogador/entrar?nome_jogador=" + strings.TrimSpace(nome)
	if err := s.post(path, &result); err != nil {
		fmt.Printf("\n[ERRO] Falha ao conectar ao servidor %s: %v\n", s.cfg.BaseURL(), err)
		return
	}
	s.playerID = result.Player.PlayerID
	s.playerName = result.Player.DisplayName
	fmt.Printf("\n[SUCESSO] Conectado como %s (ID: %s)!\n", s.playerName, s.playerID)
	fmt.Printf("Inventário inicial: %d pacotes.\n", result.Inventory.PacksAvailable)

	go s.listenNotifications()
}

// listenNotifications subscribes directly to the Coordination Store's
// broadcast channel and this player's own channel, printing every event as
// it arrives. Best-effort: a Redis outage here never blocks the menu.
func (s *session) listenNotifications() {
	ctx := context.Background()
	sub := s.rdb.Subscribe(ctx, eventbus.ChannelGeneral, eventbus.PlayerChannel(s.playerID))
	defer sub.Close()

	ch := sub.Channel()
	for msg := range ch {
		var ev eventbus.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			continue
		}
		fmt.Printf("\n[NOTIFICAÇÃO canal=%s] %s: %+v\n", msg.Channel, ev.Tipo, ev.Data)
	}
}

func (s *session) openPack() {
	if s.playerID == "" {
		fmt.Println("[ERRO] Você precisa se conectar primeiro.")
		return
	}
	fmt.Println("\n[INFO] Tentando abrir pacote... (Iniciando 2PC distribuído)")

	var result struct {
		Decision  model.Decision  `json:"decision"`
		Inventory model.Inventory `json:"inventory"`
	}
	path := "/pacote/abrir/" + s.playerID
	if err := s.post(path, &result); err != nil {
		fmt.Printf("\n[ERRO] Falha ao abrir pacote: %v\n", err)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Printf("[SUCESSO] Pacote aberto: %s\n", result.Decision)
	fmt.Printf("Total de cartas no inventário: %d\n", len(result.Inventory.Cards))
	fmt.Println(strings.Repeat("=", 40))
}

func (s *session) viewInventoryAndPing() {
	if s.playerID == "" {
		fmt.Println("[ERRO] Você precisa se conectar primeiro.")
		return
	}

	latency, err := s.pingUDP()
	fmt.Printf("\n[LATÊNCIA] Servidor: %s\n", s.cfg.BaseURL())
	if err != nil {
		fmt.Printf("[PING UDP] Falha ao medir ping UDP: %v\n", err)
	} else {
		fmt.Printf("[PING UDP] %.2f ms\n", latency)
	}

	var inv model.Inventory
	req, _ := http.NewRequest(http.MethodGet, s.cfg.BaseURL()+"/inventario/"+s.playerID, nil)
	if err := s.do(req, &inv); err != nil {
		fmt.Printf("[ERRO] Falha ao buscar inventário: %v\n", err)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 40))
	fmt.Printf("INVENTÁRIO de %s (Pacotes: %d)\n", s.playerName, inv.PacksAvailable)
	fmt.Println(strings.Repeat("=", 40))
	if len(inv.Cards) == 0 {
		fmt.Println("Nenhuma carta no inventário.")
	}
	for i, c := range inv.Cards {
		fmt.Printf("[%02d] ID: %s | %s | Skin: %s | Raridade: %s\n", i+1, c.CardID, c.DisplayName, c.Skin, c.Rarity)
	}
	fmt.Println(strings.Repeat("=", 40))
}

// pingUDP sends PING:<unix-nanos> to the node's UDP echo port (shared with
// its HTTP port, spec.md §5) and returns the measured round-trip in
// milliseconds.
func (s *session) pingUDP() (float64, error) {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", s.cfg.ServerHost, s.cfg.ServerPort))
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(1 * time.Second))
	sent := time.Now()
	msg := fmt.Sprintf("PING:%d", sent.UnixNano())
	if _, err := conn.Write([]byte(msg)); err != nil {
		return 0, err
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return 0, err
	}
	if string(buf[:n]) != msg {
		return 0, fmt.Errorf("echo mismatch")
	}
	return float64(time.Since(sent).Microseconds()) / 1000.0, nil
}

func (s *session) tradeCards(reader *bufio.Scanner) {
	if s.playerID == "" {
		fmt.Println("[ERRO] Você precisa se conectar primeiro.")
		return
	}

	var inv model.Inventory
	req, _ := http.NewRequest(http.MethodGet, s.cfg.BaseURL()+"/inventario/"+s.playerID, nil)
	if err := s.do(req, &inv); err != nil {
		fmt.Printf("[ERRO] Falha ao buscar inventário: %v\n", err)
		return
	}
	if len(inv.Cards) == 0 {
		fmt.Println("[AVISO] Você precisa de pelo menos uma carta para trocar.")
		return
	}

	for i, c := range inv.Cards {
		fmt.Printf("[%02d] %s (%s)\n", i+1, c.CardID, c.DisplayName)
	}
	fmt.Print("Número da sua carta: ")
	if !reader.Scan() {
		return
	}
	idx, err := strconv.Atoi(strings.TrimSpace(reader.Text()))
	if err != nil || idx < 1 || idx > len(inv.Cards) {
		fmt.Println("[ERRO] Número de carta inválido.")
		return
	}
	cardA := inv.Cards[idx-1].CardID

	fmt.Print("ID do jogador com quem trocar: ")
	if !reader.Scan() {
		return
	}
	playerB := strings.TrimSpace(reader.Text())

	fmt.Print("ID da carta desejada: ")
	if !reader.Scan() {
		return
	}
	cardB := strings.TrimSpace(reader.Text())

	fmt.Printf("\n[INFO] Tentando iniciar troca com %s...\n", playerB)
	path := fmt.Sprintf("/inventario/troca/%s/%s?id_carta_a=%s&id_carta_b=%s", s.playerID, playerB, cardA, cardB)
	var result struct {
		Decision model.Decision `json:"decision"`
	}
	if err := s.post(path, &result); err != nil {
		fmt.Printf("\n[ERRO] Falha na troca: %v\n", err)
		return
	}
	fmt.Printf("\n[SUCESSO] Troca de cartas: %s. Aguarde notificação Pub/Sub para atualização do inventário.\n", result.Decision)
}

func (s *session) changeServer(reader *bufio.Scanner) {
	fmt.Printf("Servidor atual: %s\n", s.cfg.BaseURL())
	fmt.Print("Novo host: ")
	if !reader.Scan() {
		return
	}
	host := strings.TrimSpace(reader.Text())
	fmt.Print("Nova porta: ")
	if !reader.Scan() {
		return
	}
	port, err := strconv.Atoi(strings.TrimSpace(reader.Text()))
	if err != nil {
		fmt.Println("[ERRO] Porta inválida.")
		return
	}
	s.cfg.ServerHost = host
	s.cfg.ServerPort = port
	s.playerID = ""
	fmt.Println("[AVISO] Desconectando o jogador atual. Por favor, entre novamente.")

	fmt.Printf("Digite seu nome para conectar ao %s: ", s.cfg.BaseURL())
	if !reader.Scan() {
		return
	}
	s.join(strings.TrimSpace(reader.Text()))
}
